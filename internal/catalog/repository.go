package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Repository reads products from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct returns the product scoped to the store.
func (r *Repository) GetProduct(ctx context.Context, storeID, productID int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, store_id, sku, name, active FROM products WHERE store_id = $1 AND id = $2`, storeID, productID).
		Scan(&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound("catalog.get", "product %d in store %d", productID, storeID)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}
