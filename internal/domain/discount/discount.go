// Package discount decides which promotional discounts apply to a cart and
// computes the resulting prices, totals and applied-discount ledger.
//
// Everything here is a pure function of its arguments: callers fetch the
// discount catalog, collections, variant prices and shipping cost up front
// and pass them in. Nothing in this package performs I/O.
package discount

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type determines what a discount reduces.
type Type uint8

const (
	// TypeProduct reduces the unit price of the line items in its scope.
	TypeProduct Type = iota + 1
	// TypeOrder reduces the product-discounted subtotal.
	TypeOrder
	// TypeShipping waives the shipping cost.
	TypeShipping
)

func (t Type) String() string {
	switch t {
	case TypeProduct:
		return "PRODUCT"
	case TypeOrder:
		return "ORDER"
	case TypeShipping:
		return "SHIPPING"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses the storage representation of a discount type.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "PRODUCT":
		return TypeProduct, nil
	case "ORDER":
		return TypeOrder, nil
	case "SHIPPING":
		return TypeShipping, nil
	default:
		return 0, errors.Errorf("unknown discount type %q", s)
	}
}

// AmountType is the unit of a discount's Amount.
type AmountType uint8

const (
	// AmountPercentage means Amount is a percentage in [0, 100].
	AmountPercentage AmountType = iota + 1
	// AmountFixed means Amount is a number of cents.
	AmountFixed
)

func (a AmountType) String() string {
	switch a {
	case AmountPercentage:
		return "PERCENTAGE"
	case AmountFixed:
		return "FIXED"
	default:
		return fmt.Sprintf("AmountType(%d)", uint8(a))
	}
}

// ParseAmountType parses the storage representation of an amount type.
func ParseAmountType(s string) (AmountType, error) {
	switch strings.ToUpper(s) {
	case "PERCENTAGE":
		return AmountPercentage, nil
	case "FIXED":
		return AmountFixed, nil
	default:
		return 0, errors.Errorf("unknown amount type %q", s)
	}
}

// Discount is a promotional rule owned by a store.
type Discount struct {
	ID          string
	Code        string
	Description string
	Type        Type
	AmountType  AmountType
	Amount      decimal.Decimal

	IsActive    bool
	IsAutomatic bool
	StartsAt    time.Time
	EndsAt      *time.Time
	DeletedAt   *time.Time

	// UseWithSale allows the code to be entered while the cart has marked
	// down items. Only consulted by the coupon path.
	UseWithSale bool

	// Combination flags are stored and returned but not enforced: order
	// discounts always stack and product discounts never do.
	CombineWithProductDiscounts  bool
	CombineWithOrderDiscounts    bool
	CombineWithShippingDiscounts bool

	ApplyToAllProducts bool
	VariantIDs         []string
	CollectionIDs      []string

	MinimumQuantity        *int64
	MinimumPurchaseInCents *int64

	MaximumUses *int64
	Uses        int64

	// CustomerIDs is an allow-list. Empty means every customer, including
	// anonymous ones.
	CustomerIDs []string
}

// LineItem is one cart row. PriceInCents is the unit price.
type LineItem struct {
	VariantID    string
	Quantity     int64
	PriceInCents int64
}

// AppliedDiscount is a ledger entry for a discount that affected the price.
type AppliedDiscount struct {
	ID   string
	Code string
	Type Type
}

// ItemDiscount attributes a product discount to the line item it won on.
type ItemDiscount struct {
	VariantID  string
	DiscountID string
}

func (d Discount) applied() AppliedDiscount {
	return AppliedDiscount{ID: d.ID, Code: d.Code, Type: d.Type}
}

var hundred = decimal.NewFromInt(100)

// roundCents rounds half away from zero to a whole number of cents.
func roundCents(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Subtotal sums price times quantity over items.
func Subtotal(items []LineItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.PriceInCents * item.Quantity
	}
	return sum
}
