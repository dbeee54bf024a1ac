package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// ProductStore implements domain.ProductStore using PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore creates a new ProductStore backed by the given connection pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const productColumns = `id, upc, asin, title, category, image_url, looked_up_at, created_at, updated_at`

// Create inserts a new product. A UPC collision yields domain.ErrAlreadyExists.
func (s *ProductStore) Create(ctx context.Context, p domain.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, upc, asin, title, category, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		p.ID, p.UPC, p.ASIN, p.Title, p.Category, p.ImageURL, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert product %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a product by primary key.
func (s *ProductStore) GetByID(ctx context.Context, id string) (domain.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("postgres: get product %s: %w", id, err)
	}
	return p, nil
}

// GetByUPC returns the product carrying the given universal product code.
func (s *ProductStore) GetByUPC(ctx context.Context, upc string) (domain.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE upc = $1`, upc)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("postgres: get product by upc %s: %w", upc, err)
	}
	return p, nil
}

// MarkLookedUp stamps looked_up_at and back-fills asin and category.
// Existing values are never overwritten.
func (s *ProductStore) MarkLookedUp(ctx context.Context, id string, asin, category *string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			asin         = COALESCE(asin, $2),
			category     = COALESCE(category, $3),
			looked_up_at = $4,
			updated_at   = NOW()
		WHERE id = $1`,
		id, asin, category, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark product %s looked up: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListStale returns products with an active listing whose last lookup is
// missing or older than before.
func (s *ProductStore) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products p
		WHERE (p.looked_up_at IS NULL OR p.looked_up_at < $1)
		  AND EXISTS (
			SELECT 1 FROM listings l
			WHERE l.product_id = p.id AND l.status = 'active'
		  )
		ORDER BY p.looked_up_at ASC NULLS FIRST
		LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.UPC, &p.ASIN, &p.Title, &p.Category, &p.ImageURL,
		&p.LookedUpAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// isUniqueViolation reports a 23505 unique_violation error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
