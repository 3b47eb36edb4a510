package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrStoreNotFound is returned when a requested store does not exist.
	ErrStoreNotFound = errors.New("store not found")
	// ErrVariantNotFound is returned when a requested variant does not exist.
	ErrVariantNotFound = errors.New("variant not found")
)

// Store is the tenant that owns products, collections and discounts.
type Store struct {
	ID       string
	Name     string
	Currency string
	// ShippingInCents is the flat shipping rate charged per order.
	ShippingInCents int64
}

// Variant is a purchasable SKU. Prices are integer minor units.
type Variant struct {
	ID                    string
	ProductID             string
	Name                  string
	PriceInCents          int64
	CompareAtPriceInCents int64
}

// OnSale reports whether the variant is marked down from its compare-at price.
func (v Variant) OnSale() bool {
	return v.CompareAtPriceInCents > v.PriceInCents
}

// Product groups the variants of a single catalog item.
type Product struct {
	ID       string
	Name     string
	Variants []Variant
}

// Collection is a named grouping of products used to scope discounts.
type Collection struct {
	ID       string
	Name     string
	Products []Product
}

// VariantIDs returns the ids of every variant reachable from the collection.
func (c Collection) VariantIDs() []string {
	var ids []string
	for _, p := range c.Products {
		for _, v := range p.Variants {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// Repository defines read operations for a store's catalog.
type Repository interface {
	GetStore(ctx context.Context, storeID string) (*Store, error)
	ListCollections(ctx context.Context, storeID string) ([]Collection, error)
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
}
