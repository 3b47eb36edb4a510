package discount

import (
	"slices"
	"time"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
)

// Input is a fully materialized cart snapshot.
type Input struct {
	Items []LineItem
	// Discounts are the store's automatic discounts.
	Discounts   []Discount
	Collections []catalog.Collection
	Variants    []catalog.Variant

	ShippingInCents int64
	CustomerID      string

	// Coupon is a code that already passed coupon validation. It competes
	// with Discounts and loses ties against them. A coupon that is also one
	// of Discounts is counted once.
	Coupon *Discount

	// Now overrides the calculator clock when non-zero.
	Now time.Time
}

// Result is the priced cart.
//
// TotalInCents = max(0, DiscountedSubtotalInCents - OrderDiscountInCents + DiscountedShippingInCents).
type Result struct {
	OriginalItems []LineItem
	Items         []LineItem

	OriginalSubtotalInCents   int64
	DiscountedSubtotalInCents int64
	ProductDiscountInCents    int64
	OrderDiscountInCents      int64
	ShippingInCents           int64
	DiscountedShippingInCents int64
	TotalInCents              int64

	// Applied is the raw ledger: winning product discounts (one entry per
	// item won), then order discounts, then the shipping discount. It is
	// not deduplicated.
	Applied       []AppliedDiscount
	ItemDiscounts []ItemDiscount
}

// Calculator runs the pricing pipeline.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a Calculator using the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// Calculate prices the cart. It never fails: discounts that do not apply
// are skipped and unknown variants keep their submitted price.
func (c *Calculator) Calculate(in Input) Result {
	now := in.Now
	if now.IsZero() {
		now = c.now()
	}

	discounts := in.Discounts
	if in.Coupon != nil && !slices.ContainsFunc(discounts, func(d Discount) bool { return d.ID == in.Coupon.ID }) {
		discounts = append(slices.Clip(discounts), *in.Coupon)
	}

	scope := NewScope(in.Collections)
	applicable := scope.ApplicableSet(discounts, in.Items, now, in.CustomerID)

	products := scope.ResolveProductDiscounts(in.Items, NewPriceIndex(in.Variants), applicable)
	discounted := Subtotal(products.Items)
	orders := AggregateOrderDiscounts(discounted, applicable)
	shipping := ResolveShippingDiscount(in.ShippingInCents, applicable)

	original := Subtotal(in.Items)
	res := Result{
		OriginalItems:             slices.Clone(in.Items),
		Items:                     products.Items,
		OriginalSubtotalInCents:   original,
		DiscountedSubtotalInCents: discounted,
		ProductDiscountInCents:    original - discounted,
		OrderDiscountInCents:      orders.DiscountInCents,
		ShippingInCents:           in.ShippingInCents,
		DiscountedShippingInCents: shipping.ShippingInCents,
		ItemDiscounts:             products.Winners,
	}
	res.TotalInCents = max(0, discounted-orders.DiscountInCents+shipping.ShippingInCents)

	res.Applied = append(res.Applied, products.Applied...)
	res.Applied = append(res.Applied, orders.Applied...)
	if shipping.Applied != nil {
		res.Applied = append(res.Applied, *shipping.Applied)
	}

	return res
}
