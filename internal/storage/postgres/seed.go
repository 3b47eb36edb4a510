package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/auth"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

const (
	upsertStoreSQL = `INSERT INTO stores (id, name, currency, shipping_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency,
			shipping_cents = EXCLUDED.shipping_cents`

	upsertProductSQL = `INSERT INTO products (id, store_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, name = EXCLUDED.name`

	upsertVariantSQL = `INSERT INTO variants (id, product_id, name, price_cents, compare_at_price_cents)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, name = EXCLUDED.name,
			price_cents = EXCLUDED.price_cents, compare_at_price_cents = EXCLUDED.compare_at_price_cents`

	upsertCollectionSQL = `INSERT INTO collections (id, store_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	clearCollectionProductsSQL = `DELETE FROM collection_products WHERE collection_id = $1`

	insertCollectionProductSQL = `INSERT INTO collection_products (collection_id, product_id, position)
		VALUES ($1, $2, $3)`

	upsertDiscountSQL = `INSERT INTO discounts (id, store_id, code, description, type, amount_type, amount,
		is_active, is_automatic, starts_at, ends_at, deleted_at, use_with_sale,
		combine_with_product, combine_with_order, combine_with_shipping, apply_to_all_products,
		minimum_quantity, minimum_purchase_cents, maximum_uses, uses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, description = EXCLUDED.description,
			type = EXCLUDED.type, amount_type = EXCLUDED.amount_type, amount = EXCLUDED.amount,
			is_active = EXCLUDED.is_active, is_automatic = EXCLUDED.is_automatic,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at, deleted_at = EXCLUDED.deleted_at,
			use_with_sale = EXCLUDED.use_with_sale, combine_with_product = EXCLUDED.combine_with_product,
			combine_with_order = EXCLUDED.combine_with_order, combine_with_shipping = EXCLUDED.combine_with_shipping,
			apply_to_all_products = EXCLUDED.apply_to_all_products, minimum_quantity = EXCLUDED.minimum_quantity,
			minimum_purchase_cents = EXCLUDED.minimum_purchase_cents, maximum_uses = EXCLUDED.maximum_uses`

	listDiscountCodesSQL = `SELECT UPPER(code) FROM discounts WHERE store_id = $1 AND code <> ''`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, store_ids, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, store_ids = EXCLUDED.store_ids, active = TRUE`
)

// Seeder writes catalog, discount and API key fixtures. Every write is an
// upsert so seeding is repeatable.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertStore creates or updates a store.
func (s *Seeder) UpsertStore(ctx context.Context, st catalog.Store) error {
	if _, err := s.pool.Exec(ctx, upsertStoreSQL, st.ID, st.Name, st.Currency, st.ShippingInCents); err != nil {
		return fmt.Errorf("upserting store %q: %w", st.ID, err)
	}
	return nil
}

// UpsertProduct creates or updates a product and its variants.
func (s *Seeder) UpsertProduct(ctx context.Context, storeID string, p catalog.Product) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, storeID, p.Name); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
		for _, v := range p.Variants {
			if _, err := tx.Exec(ctx, upsertVariantSQL,
				v.ID, p.ID, v.Name, v.PriceInCents, v.CompareAtPriceInCents,
			); err != nil {
				return fmt.Errorf("upserting variant %q: %w", v.ID, err)
			}
		}
		return nil
	})
}

// UpsertCollection creates or updates a collection and replaces its product
// membership. Products must already exist.
func (s *Seeder) UpsertCollection(ctx context.Context, storeID string, c catalog.Collection) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCollectionSQL, c.ID, storeID, c.Name); err != nil {
			return fmt.Errorf("upserting collection %q: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, clearCollectionProductsSQL, c.ID); err != nil {
			return fmt.Errorf("clearing collection %q: %w", c.ID, err)
		}
		for i, p := range c.Products {
			if _, err := tx.Exec(ctx, insertCollectionProductSQL, c.ID, p.ID, i); err != nil {
				return fmt.Errorf("adding product %q to collection %q: %w", p.ID, c.ID, err)
			}
		}
		return nil
	})
}

// UpsertDiscounts creates or updates discounts with their scope and customer
// links in a single transaction. Uses counters of existing rows are kept.
func (s *Seeder) UpsertDiscounts(ctx context.Context, storeID string, ds []discount.Discount) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range ds {
			batch.Queue(upsertDiscountSQL,
				d.ID, storeID, d.Code, d.Description, d.Type.String(), d.AmountType.String(), d.Amount,
				d.IsActive, d.IsAutomatic, d.StartsAt, d.EndsAt, d.DeletedAt, d.UseWithSale,
				d.CombineWithProductDiscounts, d.CombineWithOrderDiscounts, d.CombineWithShippingDiscounts,
				d.ApplyToAllProducts, d.MinimumQuantity, d.MinimumPurchaseInCents, d.MaximumUses, d.Uses,
			)
			queueLinks(batch, "discount_variants", "variant_id", d.ID, d.VariantIDs)
			queueLinks(batch, "discount_collections", "collection_id", d.ID, d.CollectionIDs)
			queueLinks(batch, "discount_customers", "customer_id", d.ID, d.CustomerIDs)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %d discounts: %w", len(ds), err)
		}
		return nil
	})
}

func queueLinks(batch *pgx.Batch, table, column, discountID string, ids []string) {
	batch.Queue(`DELETE FROM `+table+` WHERE discount_id = $1`, discountID)
	if len(ids) > 0 {
		batch.Queue(`INSERT INTO `+table+` (discount_id, `+column+`) SELECT $1, unnest($2::text[])`, discountID, ids)
	}
}

// DiscountCodes returns the upper-cased codes already used in the store.
func (s *Seeder) DiscountCodes(ctx context.Context, storeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, listDiscountCodesSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return codes, nil
}

// UpsertAPIKey stores key under its HMAC hash.
func (s *Seeder) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	scopes, storeIDs := info.Scopes, info.StoreIDs
	if scopes == nil {
		scopes = []string{}
	}
	if storeIDs == nil {
		storeIDs = []string{}
	}
	if _, err := s.pool.Exec(ctx, upsertAPIKeySQL,
		info.ID, info.KeyHash, info.Name, scopes, storeIDs,
	); err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}
