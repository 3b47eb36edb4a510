package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

// Validator checks a customer-entered code against a cart and returns the
// discount it refers to.
type Validator interface {
	Validate(ctx context.Context, storeID, code string, cart Cart, at time.Time) (*discount.Discount, error)
}

// RepoValidator implements Validator by looking codes up in a Repository
// and running Check on the result.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up code (trimmed, case-insensitive) in the store and checks
// it against cart at the given time, or the validator's clock when at is
// zero. Validation never consumes a use.
func (v *RepoValidator) Validate(ctx context.Context, storeID, code string, cart Cart, at time.Time) (*discount.Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	d, err := v.repo.FindByCode(ctx, storeID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if at.IsZero() {
		at = v.now()
	}
	if err := Check(*d, cart, at); err != nil {
		return nil, err
	}

	return d, nil
}

// Check runs the coupon rules against cart in a fixed order and returns the
// first rejection.
func Check(d discount.Discount, cart Cart, now time.Time) error {
	if !d.UseWithSale && cart.HasSale() {
		return ErrSaleConflict
	}
	if !d.IsActive || d.IsDeleted(now) {
		return ErrInactive
	}
	if !d.InWindow(now) {
		return ErrOutOfWindow
	}
	if !d.AllowsCustomer(cart.CustomerID) {
		return ErrCustomerNotAllowed
	}
	if !d.HasUsesLeft() {
		return ErrUsageLimitReached
	}

	if d.MinimumPurchaseInCents != nil && discount.Subtotal(cart.Items) < *d.MinimumPurchaseInCents {
		return &BelowMinimumError{MinimumInCents: *d.MinimumPurchaseInCents}
	}

	scope := discount.NewScope(cart.Collections)
	if d.Type == discount.TypeProduct && !d.ApplyToAllProducts && len(scope.Subset(d, cart.Items)) == 0 {
		return ErrNotApplicable
	}

	// Product coupons are measured against the items they cover, the same
	// way the pricing pipeline measures them.
	qty, scopedSubtotal := scope.Totals(d, cart.Items)
	if d.MinimumQuantity != nil && qty < *d.MinimumQuantity {
		return &BelowMinimumQuantityError{Minimum: *d.MinimumQuantity}
	}
	if d.MinimumPurchaseInCents != nil && scopedSubtotal < *d.MinimumPurchaseInCents {
		return &BelowMinimumError{MinimumInCents: *d.MinimumPurchaseInCents}
	}

	return nil
}
