package discount

import (
	"github.com/shopspring/decimal"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
)

// PriceIndex maps variant ids to their current catalog price in cents.
type PriceIndex map[string]int64

// NewPriceIndex builds a PriceIndex from catalog variants.
func NewPriceIndex(variants []catalog.Variant) PriceIndex {
	idx := make(PriceIndex, len(variants))
	for _, v := range variants {
		idx[v.ID] = v.PriceInCents
	}
	return idx
}

// ProductResolution is the outcome of per-item best-of selection.
type ProductResolution struct {
	Items   []LineItem
	Applied []AppliedDiscount
	Winners []ItemDiscount
}

// ResolveProductDiscounts prices every item at its catalog price reduced by
// the single most favourable product discount covering it. Ties keep the
// earlier discount. Items whose variant has no catalog price pass through
// untouched. Applied gets one entry per item a discount won on.
func (s *Scope) ResolveProductDiscounts(items []LineItem, prices PriceIndex, applicable []Discount) ProductResolution {
	res := ProductResolution{Items: make([]LineItem, 0, len(items))}

	for _, item := range items {
		base, ok := prices[item.VariantID]
		if !ok {
			res.Items = append(res.Items, item)
			continue
		}

		baseDec := decimal.NewFromInt(base)
		best := baseDec
		winner := -1
		for i, d := range applicable {
			if d.Type != TypeProduct || !s.Covers(d, item.VariantID) {
				continue
			}
			if candidate := discountedPrice(d, baseDec); candidate.LessThan(best) {
				best = candidate
				winner = i
			}
		}

		item.PriceInCents = roundCents(best)
		res.Items = append(res.Items, item)

		if winner >= 0 {
			d := applicable[winner]
			res.Applied = append(res.Applied, d.applied())
			res.Winners = append(res.Winners, ItemDiscount{VariantID: item.VariantID, DiscountID: d.ID})
		}
	}

	return res
}

func discountedPrice(d Discount, base decimal.Decimal) decimal.Decimal {
	switch d.AmountType {
	case AmountPercentage:
		return nonNegative(base.Mul(hundred.Sub(d.Amount)).Div(hundred))
	case AmountFixed:
		return nonNegative(base.Sub(d.Amount))
	default:
		return base
	}
}

// OrderResolution is the outcome of order discount aggregation.
type OrderResolution struct {
	DiscountInCents int64
	Applied         []AppliedDiscount
}

// AggregateOrderDiscounts sums every order discount against subtotalInCents.
// Order discounts stack: each applicable one is added and recorded. The sum
// is rounded once.
func AggregateOrderDiscounts(subtotalInCents int64, applicable []Discount) OrderResolution {
	var res OrderResolution
	base := decimal.NewFromInt(subtotalInCents)
	sum := decimal.Zero

	for _, d := range applicable {
		if d.Type != TypeOrder {
			continue
		}
		switch d.AmountType {
		case AmountPercentage:
			sum = sum.Add(nonNegative(base.Mul(d.Amount).Div(hundred)))
		case AmountFixed:
			sum = sum.Add(nonNegative(d.Amount))
		default:
			continue
		}
		res.Applied = append(res.Applied, d.applied())
	}

	res.DiscountInCents = roundCents(sum)
	return res
}

// ShippingResolution is the outcome of the shipping override.
type ShippingResolution struct {
	ShippingInCents int64
	Applied         *AppliedDiscount
}

// ResolveShippingDiscount waives shipping when any shipping discount is
// applicable. Only the first one is recorded; shipping is either zero or
// unchanged.
func ResolveShippingDiscount(shippingInCents int64, applicable []Discount) ShippingResolution {
	for _, d := range applicable {
		if d.Type == TypeShipping {
			a := d.applied()
			return ShippingResolution{Applied: &a}
		}
	}
	return ShippingResolution{ShippingInCents: shippingInCents}
}
