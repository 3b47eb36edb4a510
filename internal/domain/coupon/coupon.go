package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

// Rejections are shown to the customer verbatim.
var (
	// ErrNotFound is returned when no discount in the store has the code.
	ErrNotFound = errors.New("Coupon code not found.")
	// ErrSaleConflict is returned when the code cannot be combined with
	// marked down items in the cart.
	ErrSaleConflict = errors.New("Coupon is not allowed to be used along with a sale.")
	// ErrInactive is returned for disabled or deleted discounts.
	ErrInactive = errors.New("Coupon is not active.")
	// ErrOutOfWindow is returned outside the discount's active window.
	ErrOutOfWindow = errors.New("Coupon is not valid at this time.")
	// ErrCustomerNotAllowed is returned when the customer is not on the
	// discount's allow-list.
	ErrCustomerNotAllowed = errors.New("Coupon is not available for this customer.")
	// ErrUsageLimitReached is returned when the discount has no uses left.
	ErrUsageLimitReached = errors.New("Coupon has reached its usage limit.")
	// ErrBelowMinimum matches every *BelowMinimumError.
	ErrBelowMinimum = errors.New("Coupon requires a minimum subtotal.")
	// ErrBelowMinimumQuantity matches every *BelowMinimumQuantityError.
	ErrBelowMinimumQuantity = errors.New("Coupon requires a minimum quantity.")
	// ErrNotApplicable is returned when a product coupon covers nothing in
	// the cart.
	ErrNotApplicable = errors.New("Coupon is not applicable to the products/collections in the cart.")
)

// BelowMinimumError reports the subtotal a coupon requires.
type BelowMinimumError struct {
	MinimumInCents int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("Coupon requires a minimum subtotal of %s.", FormatCents(e.MinimumInCents))
}

func (e *BelowMinimumError) Is(target error) bool {
	return target == ErrBelowMinimum
}

// BelowMinimumQuantityError reports the number of items a coupon requires.
type BelowMinimumQuantityError struct {
	Minimum int64
}

func (e *BelowMinimumQuantityError) Error() string {
	return fmt.Sprintf("Coupon requires at least %d items.", e.Minimum)
}

func (e *BelowMinimumQuantityError) Is(target error) bool {
	return target == ErrBelowMinimumQuantity
}

var reasons = []struct {
	err    error
	reason string
}{
	{ErrNotFound, "not_found"},
	{ErrSaleConflict, "sale_conflict"},
	{ErrInactive, "inactive"},
	{ErrOutOfWindow, "out_of_window"},
	{ErrCustomerNotAllowed, "customer_not_allowed"},
	{ErrUsageLimitReached, "usage_limit_reached"},
	{ErrBelowMinimum, "below_minimum"},
	{ErrBelowMinimumQuantity, "below_minimum_quantity"},
	{ErrNotApplicable, "not_applicable"},
}

// Reason returns a short machine-readable label for a rejection, or
// "unknown" for errors that are not coupon rejections.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "unknown"
}

// IsRejection reports whether err is a user-facing coupon rejection.
func IsRejection(err error) bool {
	return Reason(err) != "unknown"
}

// Message returns the customer-facing text of the rejection wrapped in err.
func Message(err error) (string, bool) {
	var (
		belowMinimum  *BelowMinimumError
		belowQuantity *BelowMinimumQuantityError
	)
	switch {
	case errors.As(err, &belowMinimum):
		return belowMinimum.Error(), true
	case errors.As(err, &belowQuantity):
		return belowQuantity.Error(), true
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.err.Error(), true
		}
	}
	return "", false
}

// FormatCents renders cents as dollars, e.g. 2500 -> "$25.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Cart is the snapshot a code is checked against.
type Cart struct {
	Items       []discount.LineItem
	Variants    []catalog.Variant
	Collections []catalog.Collection
	CustomerID  string
	// SaleActive is set by callers that apply sales outside the catalog
	// compare-at prices.
	SaleActive bool
}

// HasSale reports whether the cart is flagged as on sale or contains a
// variant priced below its compare-at price.
func (c Cart) HasSale() bool {
	if c.SaleActive {
		return true
	}
	onSale := make(map[string]bool, len(c.Variants))
	for _, v := range c.Variants {
		onSale[v.ID] = v.OnSale()
	}
	for _, item := range c.Items {
		if onSale[item.VariantID] {
			return true
		}
	}
	return false
}

// Repository provides lookup of discounts by their customer-facing code.
type Repository interface {
	// FindByCode returns ErrNotFound when the store has no such code.
	FindByCode(ctx context.Context, storeID, code string) (*discount.Discount, error)
}
