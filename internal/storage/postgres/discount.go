package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/coupon"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

const discountColumns = `d.id, d.code, d.description, d.type, d.amount_type, d.amount,
	d.is_active, d.is_automatic, d.starts_at, d.ends_at, d.deleted_at,
	d.use_with_sale, d.combine_with_product, d.combine_with_order, d.combine_with_shipping,
	d.apply_to_all_products, d.minimum_quantity, d.minimum_purchase_cents, d.maximum_uses, d.uses,
	COALESCE((SELECT array_agg(variant_id ORDER BY variant_id) FROM discount_variants WHERE discount_id = d.id), '{}'),
	COALESCE((SELECT array_agg(collection_id ORDER BY collection_id) FROM discount_collections WHERE discount_id = d.id), '{}'),
	COALESCE((SELECT array_agg(customer_id ORDER BY customer_id) FROM discount_customers WHERE discount_id = d.id), '{}')`

const (
	listAutomaticDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts d
		WHERE d.store_id = $1 AND d.is_automatic AND d.is_active AND d.deleted_at IS NULL
		ORDER BY d.created_at, d.id`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts d
		WHERE d.store_id = $1 AND d.code <> '' AND UPPER(d.code) = UPPER($2)`
)

var (
	_ checkout.DiscountRepository = (*DiscountRepository)(nil)
	_ coupon.Repository           = (*DiscountRepository)(nil)
)

// DiscountRepository reads discounts backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListAutomatic returns the store's active, undeleted automatic discounts in
// creation order. Window and usage checks are left to the pricing engine.
func (r *DiscountRepository) ListAutomatic(ctx context.Context, storeID string) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listAutomaticDiscountsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing discounts for store %q: %w", storeID, err)
	}
	ds, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing discounts for store %q: %w", storeID, err)
	}
	return ds, nil
}

// FindByCode looks a discount up by code (case-insensitive), including
// inactive and deleted ones so the caller can say why a code is refused.
// Returns coupon.ErrNotFound when the store has no such code.
func (r *DiscountRepository) FindByCode(ctx context.Context, storeID, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, storeID, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d          discount.Discount
		typ        string
		amountType string
		endsAt     *time.Time
		deletedAt  *time.Time
	)
	if err := row.Scan(
		&d.ID, &d.Code, &d.Description, &typ, &amountType, &d.Amount,
		&d.IsActive, &d.IsAutomatic, &d.StartsAt, &endsAt, &deletedAt,
		&d.UseWithSale, &d.CombineWithProductDiscounts, &d.CombineWithOrderDiscounts, &d.CombineWithShippingDiscounts,
		&d.ApplyToAllProducts, &d.MinimumQuantity, &d.MinimumPurchaseInCents, &d.MaximumUses, &d.Uses,
		&d.VariantIDs, &d.CollectionIDs, &d.CustomerIDs,
	); err != nil {
		return d, err
	}
	d.EndsAt = endsAt
	d.DeletedAt = deletedAt

	var err error
	if d.Type, err = discount.ParseType(typ); err != nil {
		return d, errors.Wrapf(err, "discount %s", d.ID)
	}
	if d.AmountType, err = discount.ParseAmountType(amountType); err != nil {
		return d, errors.Wrapf(err, "discount %s", d.ID)
	}
	return d, nil
}
