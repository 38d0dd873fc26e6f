// Package repository implements the click event store over Postgres.
// Fingerprints are append-only: every landing-page visit inserts one row,
// and nothing in the system ever mutates a stored row.
package repository

import (
	"context"
	"errors"
	"time"

	"wa_attribution_backend/internal/attribution/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fingerprintColumns = `
	session_id, ip_address, user_agent, screen_resolution, timezone, language,
	campaign_id, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
	ctwa_click_id, source_id, media_url, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a fingerprint. Re-sending the same session id is a no-op, so
// a retried capture request leaves exactly one row.
func (r *Repository) Insert(ctx context.Context, fp domain.TrackingFingerprint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracking_events (
			session_id, ip_address, user_agent, screen_resolution, timezone, language,
			campaign_id, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			ctwa_click_id, source_id, media_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO NOTHING
	`,
		fp.SessionID, fp.IPAddress, fp.UserAgent, fp.ScreenResolution, fp.Timezone, fp.Language,
		fp.CampaignID, fp.UTMSource, fp.UTMMedium, fp.UTMCampaign, fp.UTMContent, fp.UTMTerm,
		fp.CtwaClickID, fp.SourceID, fp.MediaURL,
	)
	return err
}

// QueryByCtwaID returns the newest fingerprint carrying the click id, or nil.
// Duplicates can exist when the same ad click lands twice; newest wins.
func (r *Repository) QueryByCtwaID(ctx context.Context, ctwaID string) (*domain.TrackingFingerprint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+fingerprintColumns+`
		FROM tracking_events
		WHERE ctwa_click_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, ctwaID)

	fp, err := scanFingerprint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// QueryByIPAndUserAgent returns fingerprints matching both fields exactly
// within the window, newest first.
func (r *Repository) QueryByIPAndUserAgent(ctx context.Context, ip, userAgent string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fingerprintColumns+`
		FROM tracking_events
		WHERE ip_address = $1
		  AND user_agent = $2
		  AND created_at BETWEEN $3 AND $4
		ORDER BY created_at DESC
		LIMIT $5
	`, ip, userAgent, windowStart, windowEnd, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFingerprints(rows)
}

// QueryByIP returns fingerprints for the IP within the window, newest first.
func (r *Repository) QueryByIP(ctx context.Context, ip string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fingerprintColumns+`
		FROM tracking_events
		WHERE ip_address = $1
		  AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
		LIMIT $4
	`, ip, windowStart, windowEnd, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFingerprints(rows)
}

func collectFingerprints(rows pgx.Rows) ([]domain.TrackingFingerprint, error) {
	items := make([]domain.TrackingFingerprint, 0)
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, fp)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

func scanFingerprint(row pgx.Row) (domain.TrackingFingerprint, error) {
	var fp domain.TrackingFingerprint
	err := row.Scan(
		&fp.SessionID, &fp.IPAddress, &fp.UserAgent, &fp.ScreenResolution, &fp.Timezone, &fp.Language,
		&fp.CampaignID, &fp.UTMSource, &fp.UTMMedium, &fp.UTMCampaign, &fp.UTMContent, &fp.UTMTerm,
		&fp.CtwaClickID, &fp.SourceID, &fp.MediaURL, &fp.CreatedAt,
	)
	return fp, err
}
