// Package repository provides the lead-side persistence the attribution core
// collaborates with: phone lookup, device snapshots, attribution writes and
// recorrelation eligibility.
package repository

import (
	"context"
	"errors"
	"time"

	"wa_attribution_backend/internal/attribution/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lead is the denormalized lead record. Attribution fields are overwritten by
// every accepted resolution; last writer wins by design.
type Lead struct {
	ID              uuid.UUID
	Phone           string
	Name            *string
	CampaignID      *uuid.UUID
	CampaignName    *string
	UTMSource       *string
	UTMMedium       *string
	UTMCampaign     *string
	UTMContent      *string
	UTMTerm         *string
	SourceID        *string
	MediaURL        *string
	TrackingMethod  *string
	ConfidenceScore *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FindOrCreateByPhone returns the lead for a normalized phone number,
// creating it when the conversation is the first contact. The second return
// value reports whether a new lead was created.
func (r *Repository) FindOrCreateByPhone(ctx context.Context, phone string) (Lead, bool, error) {
	lead, err := r.getByPhone(ctx, phone)
	if err == nil {
		return lead, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Lead{}, false, err
	}

	var created Lead
	err = r.pool.QueryRow(ctx, `
		INSERT INTO leads (phone)
		VALUES ($1)
		ON CONFLICT (phone) DO UPDATE SET updated_at = now()
		RETURNING id, phone, name, campaign_id, campaign_name,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			source_id, media_url, tracking_method, confidence_score,
			created_at, updated_at
	`, phone).Scan(
		&created.ID, &created.Phone, &created.Name, &created.CampaignID, &created.CampaignName,
		&created.UTMSource, &created.UTMMedium, &created.UTMCampaign, &created.UTMContent, &created.UTMTerm,
		&created.SourceID, &created.MediaURL, &created.TrackingMethod, &created.ConfidenceScore,
		&created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return Lead{}, false, err
	}

	return created, true, nil
}

func (r *Repository) getByPhone(ctx context.Context, phone string) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, phone, name, campaign_id, campaign_name,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			source_id, media_url, tracking_method, confidence_score,
			created_at, updated_at
		FROM leads WHERE phone = $1
	`, phone).Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.CampaignID, &lead.CampaignName,
		&lead.UTMSource, &lead.UTMMedium, &lead.UTMCampaign, &lead.UTMContent, &lead.UTMTerm,
		&lead.SourceID, &lead.MediaURL, &lead.TrackingMethod, &lead.ConfidenceScore,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// GetLeadPhone returns the phone number for a lead id.
func (r *Repository) GetLeadPhone(ctx context.Context, leadID uuid.UUID) (string, error) {
	var phone string
	err := r.pool.QueryRow(ctx, `SELECT phone FROM leads WHERE id = $1`, leadID).Scan(&phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return phone, nil
}

// ApplyAttribution overwrites the lead's denormalized attribution fields.
// The write is idempotent; a later, stronger resolution may replace an
// earlier guess.
func (r *Repository) ApplyAttribution(ctx context.Context, leadID uuid.UUID, result domain.AttributionResult) error {
	trackingMethod := result.TrackingMethod()

	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			campaign_id = $2,
			campaign_name = $3,
			utm_source = $4,
			utm_medium = $5,
			utm_campaign = $6,
			utm_content = $7,
			utm_term = $8,
			source_id = $9,
			media_url = $10,
			tracking_method = $11,
			confidence_score = $12,
			updated_at = now()
		WHERE id = $1
	`,
		leadID, result.CampaignID, nilIfEmpty(result.CampaignName),
		result.UTMSource, result.UTMMedium, result.UTMCampaign, result.UTMContent, result.UTMTerm,
		result.SourceID, result.MediaURL, &trackingMethod, result.ConfidenceScore,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeviceSnapshot stores the device signals observed when a visitor
// taps the WhatsApp button, keyed by the phone number they are about to
// message from. This is what retroactive correlation later searches on.
func (r *Repository) RecordDeviceSnapshot(ctx context.Context, phone string, fp domain.TrackingFingerprint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_devices (
			phone, session_id, ip_address, user_agent, screen_resolution,
			timezone, language, ctwa_click_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		phone, nilIfEmpty(fp.SessionID), fp.IPAddress, fp.UserAgent, fp.ScreenResolution,
		fp.Timezone, fp.Language, fp.CtwaClickID,
	)
	return err
}

// GetLatestDeviceFingerprint returns the newest device snapshot recorded for
// a phone, or nil when the phone was never seen on a tracked page.
func (r *Repository) GetLatestDeviceFingerprint(ctx context.Context, phone string) (*domain.TrackingFingerprint, error) {
	var fp domain.TrackingFingerprint
	var sessionID *string
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, ip_address, user_agent, screen_resolution,
			timezone, language, ctwa_click_id, created_at
		FROM lead_devices
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, phone).Scan(
		&sessionID, &fp.IPAddress, &fp.UserAgent, &fp.ScreenResolution,
		&fp.Timezone, &fp.Language, &fp.CtwaClickID, &fp.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		fp.SessionID = *sessionID
	}
	return &fp, nil
}

// ListRecorrelationCandidates returns ids of leads created since the cutoff
// that still lack campaign attribution or were tagged organic. This is the
// default eligibility scope; callers may also hand the correlator an
// explicit id list.
func (r *Repository) ListRecorrelationCandidates(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM leads
		WHERE created_at >= $1
		  AND (utm_source IS NULL OR tracking_method IS NULL OR tracking_method = 'organic')
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return ids, nil
}

// AddTimelineEntry appends an entry to the lead's activity timeline.
func (r *Repository) AddTimelineEntry(ctx context.Context, leadID uuid.UUID, kind, description string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_timeline (lead_id, kind, description)
		VALUES ($1, $2, $3)
	`, leadID, kind, description)
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
