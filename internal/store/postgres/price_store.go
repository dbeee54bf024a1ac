package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// InsertBatch appends observations in a single batch.
func (s *PriceStore) InsertBatch(ctx context.Context, obs []domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO price_observations (
			id, product_id, marketplace, price, shipping_cost, condition,
			url, seller_info, metadata, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(query,
			o.ID, o.ProductID, string(o.Marketplace), o.Price, o.ShippingCost, o.Condition,
			o.URL, o.SellerInfo, o.Metadata, o.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range obs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert price observation batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListSince returns a product's observations fetched at or after since,
// newest first.
func (s *PriceStore) ListSince(ctx context.Context, productID string, since time.Time) ([]domain.PriceObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, marketplace, price, shipping_cost, condition,
		       url, seller_info, metadata, fetched_at
		FROM price_observations
		WHERE product_id = $1 AND fetched_at >= $2
		ORDER BY fetched_at DESC, id`,
		productID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price observations for %s: %w", productID, err)
	}
	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var (
			o           domain.PriceObservation
			marketplace string
		)
		if err := rows.Scan(
			&o.ID, &o.ProductID, &marketplace, &o.Price, &o.ShippingCost, &o.Condition,
			&o.URL, &o.SellerInfo, &o.Metadata, &o.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan price observation: %w", err)
		}
		o.Marketplace = domain.Marketplace(marketplace)
		out = append(out, o)
	}
	return out, rows.Err()
}
