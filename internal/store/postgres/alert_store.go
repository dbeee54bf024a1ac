package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// ListActiveSettings returns every active alert setting.
func (s *AlertStore) ListActiveSettings(ctx context.Context) ([]domain.AlertSetting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, min_profit, min_roi, watched_categories, is_active, created_at
		FROM alert_settings
		WHERE is_active
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert settings: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertSetting
	for rows.Next() {
		var a domain.AlertSetting
		if err := rows.Scan(&a.ID, &a.Email, &a.MinProfit, &a.MinROI,
			&a.WatchedCategories, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert setting: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertSetting inserts or updates an alert setting.
func (s *AlertStore) UpsertSetting(ctx context.Context, a domain.AlertSetting) error {
	categories := a.WatchedCategories
	if categories == nil {
		categories = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_settings (id, email, min_profit, min_roi, watched_categories, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email              = EXCLUDED.email,
			min_profit         = EXCLUDED.min_profit,
			min_roi            = EXCLUDED.min_roi,
			watched_categories = EXCLUDED.watched_categories,
			is_active          = EXCLUDED.is_active`,
		a.ID, a.Email, a.MinProfit, a.MinROI, categories, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert alert setting %s: %w", a.ID, err)
	}
	return nil
}

// HasSent reports whether the setting was already notified about the
// opportunity.
func (s *AlertStore) HasSent(ctx context.Context, settingID, opportunityID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM alert_history
			WHERE alert_setting_id = $1 AND opportunity_id = $2
		)`,
		settingID, opportunityID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check alert history: %w", err)
	}
	return exists, nil
}

// RecordSent inserts a history row. A row for the same pair already present
// is left untouched.
func (s *AlertStore) RecordSent(ctx context.Context, h domain.AlertHistory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history (id, alert_setting_id, opportunity_id, email, subject, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alert_setting_id, opportunity_id) DO NOTHING`,
		h.ID, h.AlertSettingID, h.OpportunityID, h.Email, h.Subject, h.SentAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record alert %s/%s: %w", h.AlertSettingID, h.OpportunityID, err)
	}
	return nil
}

var (
	_ domain.ProductStore     = (*ProductStore)(nil)
	_ domain.ListingStore     = (*ListingStore)(nil)
	_ domain.PriceStore       = (*PriceStore)(nil)
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.AlertStore       = (*AlertStore)(nil)
)
