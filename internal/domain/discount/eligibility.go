package discount

import (
	"slices"
	"time"
)

// IsEligible reports whether d is usable at all at now for customerID,
// independent of any cart. Failing discounts are skipped, never reported.
func IsEligible(d Discount, now time.Time, customerID string) bool {
	return d.IsActive &&
		!d.IsDeleted(now) &&
		d.InWindow(now) &&
		d.AllowsCustomer(customerID) &&
		d.HasUsesLeft()
}

// IsDeleted reports whether d was soft-deleted at or before now.
func (d Discount) IsDeleted(now time.Time) bool {
	return d.DeletedAt != nil && !d.DeletedAt.After(now)
}

// InWindow reports whether now lies within [StartsAt, EndsAt]. A discount
// without EndsAt never expires.
func (d Discount) InWindow(now time.Time) bool {
	if now.Before(d.StartsAt) {
		return false
	}
	return d.EndsAt == nil || !now.After(*d.EndsAt)
}

// AllowsCustomer reports whether customerID passes the allow-list. An empty
// customerID only passes an empty allow-list.
func (d Discount) AllowsCustomer(customerID string) bool {
	if len(d.CustomerIDs) == 0 {
		return true
	}
	return customerID != "" && slices.Contains(d.CustomerIDs, customerID)
}

// HasUsesLeft reports whether another redemption fits under MaximumUses.
func (d Discount) HasUsesLeft() bool {
	return d.MaximumUses == nil || d.Uses < *d.MaximumUses
}
