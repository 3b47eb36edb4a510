package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

// ErrRedemptionConflict is returned when an applied discount ran out of
// uses before the order could be stored.
var ErrRedemptionConflict = errors.New("discount is no longer available")

// Order is a placed order with its final pricing breakdown.
type Order struct {
	ID         string
	StoreID    string
	CustomerID string
	CouponCode string

	Items            []Item
	AppliedDiscounts []AppliedDiscount

	SubtotalInCents        int64
	ProductDiscountInCents int64
	OrderDiscountInCents   int64
	ShippingInCents        int64
	TotalInCents           int64

	CreatedAt time.Time
}

// Item is a line of a placed order priced after product discounts.
type Item struct {
	VariantID          string `json:"variant_id"`
	Quantity           int64  `json:"quantity"`
	PriceInCents       int64  `json:"price_in_cents"`
	OriginalPriceCents int64  `json:"original_price_in_cents"`
}

// AppliedDiscount is the stored form of a ledger entry.
type AppliedDiscount struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Type string `json:"type"`
}

// FromResult copies a pricing result into o.
func (o *Order) FromResult(res discount.Result) {
	o.Items = make([]Item, len(res.Items))
	for i, item := range res.Items {
		o.Items[i] = Item{
			VariantID:          item.VariantID,
			Quantity:           item.Quantity,
			PriceInCents:       item.PriceInCents,
			OriginalPriceCents: res.OriginalItems[i].PriceInCents,
		}
	}

	o.AppliedDiscounts = make([]AppliedDiscount, len(res.Applied))
	for i, a := range res.Applied {
		o.AppliedDiscounts[i] = AppliedDiscount{ID: a.ID, Code: a.Code, Type: a.Type.String()}
	}

	o.SubtotalInCents = res.OriginalSubtotalInCents
	o.ProductDiscountInCents = res.ProductDiscountInCents
	o.OrderDiscountInCents = res.OrderDiscountInCents
	o.ShippingInCents = res.DiscountedShippingInCents
	o.TotalInCents = res.TotalInCents
}

// RedeemedDiscountIDs returns the distinct ids of the applied discounts in
// ledger order.
func (o *Order) RedeemedDiscountIDs() []string {
	var ids []string
	seen := make(map[string]struct{}, len(o.AppliedDiscounts))
	for _, a := range o.AppliedDiscounts {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		ids = append(ids, a.ID)
	}
	return ids
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and consumes one use of every discount in
	// RedeemedDiscountIDs atomically. It returns ErrRedemptionConflict when
	// any of them has no uses left.
	Create(ctx context.Context, order *Order) error
}
