package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityColumns = `o.id, o.product_id, o.listing_id, o.marketplace, o.buy_cost,
	o.estimated_sell_price, o.platform_fees, o.shipping_cost, o.profit, o.roi_pct,
	o.confidence_score, o.created_at`

// ReplaceForListing swaps the listing's opportunity set inside one
// transaction. The listing row is locked first so concurrent refreshes of
// the same listing serialize instead of interleaving their deletes and
// inserts.
func (s *OpportunityStore) ReplaceForListing(ctx context.Context, listingID string, opps []domain.Opportunity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM listings WHERE id = $1 FOR UPDATE`, listingID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock listing %s: %w", listingID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM opportunities WHERE listing_id = $1`, listingID); err != nil {
		return fmt.Errorf("postgres: delete opportunities for %s: %w", listingID, err)
	}

	if len(opps) > 0 {
		const query = `
			INSERT INTO opportunities (
				id, product_id, listing_id, marketplace, buy_cost, estimated_sell_price,
				platform_fees, shipping_cost, profit, roi_pct, confidence_score, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

		batch := &pgx.Batch{}
		for _, o := range opps {
			batch.Queue(query,
				o.ID, o.ProductID, listingID, string(o.Marketplace), o.BuyCost, o.EstimatedSellPrice,
				o.PlatformFees, o.ShippingCost, o.Profit, o.ROIPct, o.ConfidenceScore, o.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert opportunities for %s: %w", listingID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit opportunities for %s: %w", listingID, err)
	}
	return nil
}

// ListByListing returns the current opportunity set of one listing.
func (s *OpportunityStore) ListByListing(ctx context.Context, listingID string) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+opportunityColumns+`
		FROM opportunities o
		WHERE o.listing_id = $1
		ORDER BY o.marketplace`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities for %s: %w", listingID, err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListCandidates returns the opportunities of active listings that meet the
// setting's profit and ROI thresholds and, if it has one, its category
// filter. Best profit first.
func (s *OpportunityStore) ListCandidates(ctx context.Context, setting domain.AlertSetting) ([]domain.AlertCandidate, error) {
	categories := setting.WatchedCategories
	if categories == nil {
		categories = []string{}
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+opportunityColumns+`,
		       p.title, COALESCE(p.category, ''), COALESCE(p.image_url, ''),
		       l.url, l.current_bid
		FROM opportunities o
		JOIN products p ON p.id = o.product_id
		JOIN listings l ON l.id = o.listing_id
		WHERE o.profit >= $1
		  AND o.roi_pct >= $2
		  AND l.status = 'active'
		  AND (cardinality($3::text[]) = 0 OR p.category = ANY($3::text[]))
		ORDER BY o.profit DESC, o.id`,
		setting.MinProfit, setting.MinROI, categories,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert candidates for %s: %w", setting.ID, err)
	}
	defer rows.Close()

	var out []domain.AlertCandidate
	for rows.Next() {
		var (
			c           domain.AlertCandidate
			o           = &c.Opportunity
			marketplace string
		)
		if err := rows.Scan(
			&o.ID, &o.ProductID, &o.ListingID, &marketplace, &o.BuyCost,
			&o.EstimatedSellPrice, &o.PlatformFees, &o.ShippingCost, &o.Profit, &o.ROIPct,
			&o.ConfidenceScore, &o.CreatedAt,
			&c.Title, &c.Category, &c.ImageURL, &c.ListingURL, &c.CurrentBid,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan alert candidate: %w", err)
		}
		o.Marketplace = domain.Marketplace(marketplace)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		o           domain.Opportunity
		marketplace string
	)
	err := row.Scan(
		&o.ID, &o.ProductID, &o.ListingID, &marketplace, &o.BuyCost,
		&o.EstimatedSellPrice, &o.PlatformFees, &o.ShippingCost, &o.Profit, &o.ROIPct,
		&o.ConfidenceScore, &o.CreatedAt,
	)
	o.Marketplace = domain.Marketplace(marketplace)
	return o, err
}
