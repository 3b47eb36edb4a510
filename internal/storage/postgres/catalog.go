package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
)

const (
	getStoreSQL = `SELECT id, name, currency, shipping_cents FROM stores WHERE id = $1`

	getVariantsByIDsSQL = `SELECT id, product_id, name, price_cents, compare_at_price_cents
		FROM variants WHERE id = ANY($1)`

	listCollectionsSQL = `SELECT c.id, c.name, p.id, p.name, v.id, v.name, v.price_cents, v.compare_at_price_cents
		FROM collections c
		LEFT JOIN collection_products cp ON cp.collection_id = c.id
		LEFT JOIN products p ON p.id = cp.product_id
		LEFT JOIN variants v ON v.product_id = p.id
		WHERE c.store_id = $1
		ORDER BY c.created_at, c.id, cp.position, p.id, v.id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetStore returns a store by id or catalog.ErrStoreNotFound.
func (r *CatalogRepository) GetStore(ctx context.Context, storeID string) (*catalog.Store, error) {
	var s catalog.Store
	err := r.pool.QueryRow(ctx, getStoreSQL, storeID).Scan(&s.ID, &s.Name, &s.Currency, &s.ShippingInCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrStoreNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", storeID, err)
	}
	return &s, nil
}

// GetVariants returns the variants matching any of the given ids. Unknown
// ids are skipped.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	vs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Variant, error) {
		var v catalog.Variant
		err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceInCents, &v.CompareAtPriceInCents)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return vs, nil
}

// ListCollections returns the store's collections with their products and
// variants nested.
func (r *CatalogRepository) ListCollections(ctx context.Context, storeID string) ([]catalog.Collection, error) {
	rows, err := r.pool.Query(ctx, listCollectionsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing collections for store %q: %w", storeID, err)
	}
	flat, err := pgx.CollectRows(rows, scanCollectionRow)
	if err != nil {
		return nil, fmt.Errorf("listing collections for store %q: %w", storeID, err)
	}
	return nestCollections(flat), nil
}

type collectionRow struct {
	collectionID   string
	collectionName string
	productID      *string
	productName    *string
	variant        *catalog.Variant
}

func scanCollectionRow(row pgx.CollectableRow) (collectionRow, error) {
	var (
		r           collectionRow
		variantID   *string
		variantName *string
		price       *int64
		compareAt   *int64
	)
	if err := row.Scan(
		&r.collectionID, &r.collectionName, &r.productID, &r.productName,
		&variantID, &variantName, &price, &compareAt,
	); err != nil {
		return r, err
	}
	if variantID != nil && r.productID != nil {
		r.variant = &catalog.Variant{ID: *variantID, ProductID: *r.productID}
		if variantName != nil {
			r.variant.Name = *variantName
		}
		if price != nil {
			r.variant.PriceInCents = *price
		}
		if compareAt != nil {
			r.variant.CompareAtPriceInCents = *compareAt
		}
	}
	return r, nil
}

// nestCollections folds rows ordered by collection then product into the
// nested catalog shape.
func nestCollections(rows []collectionRow) []catalog.Collection {
	var out []catalog.Collection
	for _, row := range rows {
		if len(out) == 0 || out[len(out)-1].ID != row.collectionID {
			out = append(out, catalog.Collection{ID: row.collectionID, Name: row.collectionName})
		}
		c := &out[len(out)-1]
		if row.productID == nil {
			continue
		}

		if len(c.Products) == 0 || c.Products[len(c.Products)-1].ID != *row.productID {
			p := catalog.Product{ID: *row.productID}
			if row.productName != nil {
				p.Name = *row.productName
			}
			c.Products = append(c.Products, p)
		}
		if row.variant != nil {
			p := &c.Products[len(c.Products)-1]
			p.Variants = append(p.Variants, *row.variant)
		}
	}
	return out
}
