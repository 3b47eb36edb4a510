package discount

import (
	"slices"
	"time"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
)

// Scope answers applicability and threshold questions against a store's
// collection catalog. It is built once per pricing run and is read-only
// afterwards.
type Scope struct {
	// variant id -> ids of collections containing the variant's product
	collections map[string][]string
}

// NewScope indexes collections by the variants they contain.
func NewScope(collections []catalog.Collection) *Scope {
	s := &Scope{collections: make(map[string][]string)}
	for _, c := range collections {
		for _, id := range c.VariantIDs() {
			if !slices.Contains(s.collections[id], c.ID) {
				s.collections[id] = append(s.collections[id], c.ID)
			}
		}
	}
	return s
}

// Covers reports whether the product discount d applies to variantID: the
// variant is listed directly, belongs to a listed collection, or d applies
// to all products.
func (s *Scope) Covers(d Discount, variantID string) bool {
	if d.ApplyToAllProducts {
		return true
	}
	if slices.Contains(d.VariantIDs, variantID) {
		return true
	}
	for _, id := range s.collections[variantID] {
		if slices.Contains(d.CollectionIDs, id) {
			return true
		}
	}
	return false
}

// Subset returns the items d is evaluated against: the covered items for
// product discounts and the whole cart otherwise.
func (s *Scope) Subset(d Discount, items []LineItem) []LineItem {
	switch d.Type {
	case TypeProduct:
		var out []LineItem
		for _, item := range items {
			if s.Covers(d, item.VariantID) {
				out = append(out, item)
			}
		}
		return out
	case TypeOrder, TypeShipping:
		return items
	default:
		return nil
	}
}

// Totals returns the quantity and subtotal of the items d is measured
// against, using the prices as given.
func (s *Scope) Totals(d Discount, items []LineItem) (quantity, subtotalInCents int64) {
	subset := s.Subset(d, items)
	for _, item := range subset {
		quantity += item.Quantity
	}
	return quantity, Subtotal(subset)
}

// MeetsThresholds reports whether the minimum quantity and minimum purchase
// of d are satisfied by its subset of items.
func (s *Scope) MeetsThresholds(d Discount, items []LineItem) bool {
	qty, sum := s.Totals(d, items)
	if d.MinimumQuantity != nil && qty < *d.MinimumQuantity {
		return false
	}
	if d.MinimumPurchaseInCents != nil && sum < *d.MinimumPurchaseInCents {
		return false
	}
	return true
}

// ApplicableSet keeps the discounts that are eligible at now for customerID
// and whose thresholds the cart meets. Order is preserved.
func (s *Scope) ApplicableSet(discounts []Discount, items []LineItem, now time.Time, customerID string) []Discount {
	var out []Discount
	for _, d := range discounts {
		if IsEligible(d, now, customerID) && s.MeetsThresholds(d, items) {
			out = append(out, d)
		}
	}
	return out
}
