// Package catalog reads tenant product data. All access is read-only:
// product rows are maintained by an external system and this package only
// serves lookups for the conversation tools.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvus-ai/corvid/internal/log"
)

// ErrNotFound reports a product that does not exist for the tenant or is
// inactive.
var ErrNotFound = errors.New("catalog: product not found")

const defaultLimit = 10

// Product is one catalog entry.
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	SKU            string         `json:"sku,omitempty"`
	Price          float64        `json:"price"`
	Currency       string         `json:"currency"`
	StockQuantity  int            `json:"stockQuantity"`
	Specifications map[string]any `json:"specifications,omitempty"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
}

// Availability is the stock answer for one product.
type Availability struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	InStock       bool   `json:"inStock"`
	StockQuantity int    `json:"stockQuantity"`
}

// Store serves product lookups for all tenants. Inactive products are
// invisible through every method.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const productColumns = `id, name, description, category, sku, price, currency, stock_quantity, specifications, created_at, updated_at`

// Product fetches one product by ID.
func (s *Store) Product(ctx context.Context, tenant, id string) (*Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2 AND is_active`,
		tenant, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	return p, nil
}

// SearchFilter narrows a text search.
type SearchFilter struct {
	Category string
	MaxPrice float64
	Limit    int
}

// Search runs a full-text search over names and descriptions, newest
// match first within equal rank.
func (s *Store) Search(ctx context.Context, tenant, query string, f SearchFilter) ([]Product, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND is_active
		  AND to_tsvector('english', name || ' ' || description) @@ plainto_tsquery('english', $2)
		  AND ($3 = '' OR category = $3)
		  AND ($4::numeric <= 0 OR price <= $4)
		ORDER BY ts_rank(to_tsvector('english', name || ' ' || description), plainto_tsquery('english', $2)) DESC,
		         updated_at DESC
		LIMIT $5`,
		tenant, query, f.Category, f.MaxPrice, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ByCategory lists active products in a category.
func (s *Store) ByCategory(ctx context.Context, tenant, category string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE tenant_id = $1 AND category = $2 AND is_active
		 ORDER BY name LIMIT $3`,
		tenant, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list category %s: %w", category, err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Availability reports stock for one product.
func (s *Store) Availability(ctx context.Context, tenant, id string) (*Availability, error) {
	var a Availability
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, stock_quantity FROM products
		 WHERE tenant_id = $1 AND id = $2 AND is_active`,
		tenant, id).Scan(&a.ProductID, &a.Name, &a.StockQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load availability %s: %w", id, err)
	}
	a.InStock = a.StockQuantity > 0
	return &a, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		specs []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.SKU,
		&p.Price, &p.Currency, &p.StockQuantity, &specs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &p.Specifications); err != nil {
			return nil, fmt.Errorf("parse specifications for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}
	return out, nil
}
