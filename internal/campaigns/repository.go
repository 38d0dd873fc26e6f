// Package campaigns provides read access to campaign metadata. Campaign CRUD
// lives in the dashboard; the attribution core only resolves display names.
package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCampaignName returns the campaign's display name, or nil when the
// campaign does not exist.
func (r *Repository) GetCampaignName(ctx context.Context, campaignID uuid.UUID) (*string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM campaigns WHERE id = $1`, campaignID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &name, nil
}
