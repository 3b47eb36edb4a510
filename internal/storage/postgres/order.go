package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, store_id, customer_id, coupon_code, items, applied_discounts,
		subtotal_cents, product_discount_cents, order_discount_cents, shipping_cents, total_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	// Guarded so two checkouts cannot both take the last use.
	redeemDiscountsSQL = `UPDATE discounts SET uses = uses + 1
		WHERE id = ANY($1) AND (maximum_uses IS NULL OR uses < maximum_uses)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and redeems its applied discounts in one
// transaction. Items and the discount ledger are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	applied := o.AppliedDiscounts
	if applied == nil {
		applied = []order.AppliedDiscount{}
	}
	appliedJSON, err := json.Marshal(applied)
	if err != nil {
		return fmt.Errorf("marshaling applied discounts: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.StoreID, o.CustomerID, o.CouponCode, itemsJSON, appliedJSON,
			o.SubtotalInCents, o.ProductDiscountInCents, o.OrderDiscountInCents, o.ShippingInCents, o.TotalInCents,
			o.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		ids := o.RedeemedDiscountIDs()
		if len(ids) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, redeemDiscountsSQL, ids)
		if err != nil {
			return fmt.Errorf("redeeming discounts for order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() != int64(len(ids)) {
			return order.ErrRedemptionConflict
		}
		return nil
	})
}
