package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingColumns = `id, external_id, product_id, current_bid, retail_price, condition,
	closes_at, status, url, warehouse_location, raw_payload, created_at, updated_at`

// Create inserts a new listing. A duplicate external id yields
// domain.ErrAlreadyExists.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (
			id, external_id, product_id, current_bid, retail_price, condition,
			closes_at, status, url, warehouse_location, raw_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		l.ID, l.ExternalID, l.ProductID, l.CurrentBid, l.RetailPrice, string(l.Condition),
		l.ClosesAt, string(l.Status), l.URL, l.WarehouseLocation, []byte(l.RawPayload), l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert listing %s: %w", l.ExternalID, err)
	}
	return nil
}

// GetByExternalID returns the listing with the given auction-source id.
func (s *ListingStore) GetByExternalID(ctx context.Context, externalID string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", externalID, err)
	}
	return l, nil
}

// UpdateSighting refreshes the bid and, when known, the close time.
func (s *ListingStore) UpdateSighting(ctx context.Context, id string, bid float64, closesAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET
			current_bid = $2,
			closes_at   = COALESCE($3, closes_at),
			updated_at  = NOW()
		WHERE id = $1`,
		id, bid, closesAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// listActiveQuery pages by id. Ingest rewrites closes_at concurrently, so
// ordering on it would let rows shift between pages.
const listActiveQuery = `
		SELECT ` + listingColumns + ` FROM listings
		WHERE status = 'active'
		ORDER BY id
		LIMIT $1 OFFSET $2`

// ListActive returns active listings ordered by id.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, listActiveQuery, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var (
		l                 domain.Listing
		condition, status string
		raw               []byte
	)
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.ProductID, &l.CurrentBid, &l.RetailPrice, &condition,
		&l.ClosesAt, &status, &l.URL, &l.WarehouseLocation, &raw, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Condition = domain.Condition(condition)
	l.Status = domain.ListingStatus(status)
	l.RawPayload = raw
	return l, nil
}
