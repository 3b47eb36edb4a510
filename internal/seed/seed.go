// Package seed reads catalog and discount fixtures and writes them through
// the PostgreSQL seeder.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

// File is a complete store fixture.
type File struct {
	Store       Store        `json:"store"`
	Products    []Product    `json:"products"`
	Collections []Collection `json:"collections"`
	Discounts   []Discount   `json:"discounts"`
}

type Store struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	ShippingInCents int64  `json:"shippingInCents"`
}

type Variant struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	PriceInCents          int64  `json:"priceInCents"`
	CompareAtPriceInCents int64  `json:"compareAtPriceInCents"`
}

type Product struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Variants []Variant `json:"variants"`
}

type Collection struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProductIDs []string `json:"productIds"`
}

// Discount is the fixture form of discount.Discount. Amount accepts a JSON
// number or string.
type Discount struct {
	ID                           string          `json:"id"`
	Code                         string          `json:"code"`
	Description                  string          `json:"description"`
	Type                         string          `json:"type"`
	AmountType                   string          `json:"amountType"`
	Amount                       decimal.Decimal `json:"amount"`
	IsActive                     bool            `json:"isActive"`
	IsAutomatic                  bool            `json:"isAutomatic"`
	StartsAt                     *time.Time      `json:"startsAt"`
	EndsAt                       *time.Time      `json:"endsAt"`
	UseWithSale                  bool            `json:"useWithSale"`
	CombineWithProductDiscounts  bool            `json:"combineWithProductDiscounts"`
	CombineWithOrderDiscounts    bool            `json:"combineWithOrderDiscounts"`
	CombineWithShippingDiscounts bool            `json:"combineWithShippingDiscounts"`
	ApplyToAllProducts           bool            `json:"applyToAllProducts"`
	VariantIDs                   []string        `json:"variantIds"`
	CollectionIDs                []string        `json:"collectionIds"`
	MinimumQuantity              *int64          `json:"minimumQuantity"`
	MinimumPurchaseInCents       *int64          `json:"minimumPurchaseInCents"`
	MaximumUses                  *int64          `json:"maximumUses"`
	CustomerIDs                  []string        `json:"customerIds"`
}

// Domain validates the fixture and converts it. A missing startsAt means
// now.
func (d Discount) Domain(now time.Time) (discount.Discount, error) {
	if d.ID == "" {
		return discount.Discount{}, errors.New("id required")
	}
	code := strings.TrimSpace(d.Code)
	if code == "" && !d.IsAutomatic {
		return discount.Discount{}, errors.Errorf("discount %s: code required for coupons", d.ID)
	}
	typ, err := discount.ParseType(d.Type)
	if err != nil {
		return discount.Discount{}, errors.Wrapf(err, "discount %s", d.ID)
	}
	amountType, err := discount.ParseAmountType(d.AmountType)
	if err != nil {
		return discount.Discount{}, errors.Wrapf(err, "discount %s", d.ID)
	}
	if d.Amount.IsNegative() {
		return discount.Discount{}, errors.Errorf("discount %s: amount must not be negative", d.ID)
	}
	if amountType == discount.AmountPercentage && d.Amount.GreaterThan(decimal.NewFromInt(100)) {
		return discount.Discount{}, errors.Errorf("discount %s: percentage above 100", d.ID)
	}

	startsAt := now
	if d.StartsAt != nil {
		startsAt = *d.StartsAt
	}
	if d.EndsAt != nil && d.EndsAt.Before(startsAt) {
		return discount.Discount{}, errors.Errorf("discount %s: ends before it starts", d.ID)
	}

	return discount.Discount{
		ID:                           d.ID,
		Code:                         code,
		Description:                  d.Description,
		Type:                         typ,
		AmountType:                   amountType,
		Amount:                       d.Amount,
		IsActive:                     d.IsActive,
		IsAutomatic:                  d.IsAutomatic,
		StartsAt:                     startsAt,
		EndsAt:                       d.EndsAt,
		UseWithSale:                  d.UseWithSale,
		CombineWithProductDiscounts:  d.CombineWithProductDiscounts,
		CombineWithOrderDiscounts:    d.CombineWithOrderDiscounts,
		CombineWithShippingDiscounts: d.CombineWithShippingDiscounts,
		ApplyToAllProducts:           d.ApplyToAllProducts,
		VariantIDs:                   d.VariantIDs,
		CollectionIDs:                d.CollectionIDs,
		MinimumQuantity:              d.MinimumQuantity,
		MinimumPurchaseInCents:       d.MinimumPurchaseInCents,
		MaximumUses:                  d.MaximumUses,
		CustomerIDs:                  d.CustomerIDs,
	}, nil
}

// Load reads a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	if f.Store.ID == "" {
		return nil, errors.New("fixture store id required")
	}
	return &f, nil
}

// CatalogProducts converts the fixture products.
func (f *File) CatalogProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(f.Products))
	for _, p := range f.Products {
		cp := catalog.Product{ID: p.ID, Name: p.Name}
		for _, v := range p.Variants {
			cp.Variants = append(cp.Variants, catalog.Variant{
				ID:                    v.ID,
				ProductID:             p.ID,
				Name:                  v.Name,
				PriceInCents:          v.PriceInCents,
				CompareAtPriceInCents: v.CompareAtPriceInCents,
			})
		}
		out = append(out, cp)
	}
	return out
}

// CatalogCollections converts the fixture collections. Unknown product ids
// are reported as errors.
func (f *File) CatalogCollections() ([]catalog.Collection, error) {
	products := make(map[string]catalog.Product, len(f.Products))
	for _, p := range f.CatalogProducts() {
		products[p.ID] = p
	}
	out := make([]catalog.Collection, 0, len(f.Collections))
	for _, c := range f.Collections {
		cc := catalog.Collection{ID: c.ID, Name: c.Name}
		for _, id := range c.ProductIDs {
			p, ok := products[id]
			if !ok {
				return nil, errors.Errorf("collection %s: unknown product %s", c.ID, id)
			}
			cc.Products = append(cc.Products, p)
		}
		out = append(out, cc)
	}
	return out, nil
}

// DecodeDiscounts reads newline-delimited discount records from r and calls
// fn for each one. Blank lines are skipped; line numbers start at 1.
func DecodeDiscounts(r io.Reader, fn func(line int, d Discount) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var d Discount
		if err := json.Unmarshal(raw, &d); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := fn(line, d); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// Writer persists fixtures. *postgres.Seeder implements it.
type Writer interface {
	UpsertStore(ctx context.Context, s catalog.Store) error
	UpsertProduct(ctx context.Context, storeID string, p catalog.Product) error
	UpsertCollection(ctx context.Context, storeID string, c catalog.Collection) error
	UpsertDiscounts(ctx context.Context, storeID string, ds []discount.Discount) error
}

// Apply writes the store, then products, collections and discounts, so that
// every reference already exists when it is written.
func (f *File) Apply(ctx context.Context, w Writer, now time.Time) error {
	collections, err := f.CatalogCollections()
	if err != nil {
		return err
	}
	discounts := make([]discount.Discount, 0, len(f.Discounts))
	for _, d := range f.Discounts {
		dd, err := d.Domain(now)
		if err != nil {
			return err
		}
		discounts = append(discounts, dd)
	}

	storeID := f.Store.ID
	if err := w.UpsertStore(ctx, catalog.Store{
		ID:              storeID,
		Name:            f.Store.Name,
		Currency:        f.Store.Currency,
		ShippingInCents: f.Store.ShippingInCents,
	}); err != nil {
		return errors.Wrap(err, "store")
	}
	for _, p := range f.CatalogProducts() {
		if err := w.UpsertProduct(ctx, storeID, p); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
	}
	for _, c := range collections {
		if err := w.UpsertCollection(ctx, storeID, c); err != nil {
			return errors.Wrapf(err, "collection %s", c.ID)
		}
	}
	if len(discounts) > 0 {
		if err := w.UpsertDiscounts(ctx, storeID, discounts); err != nil {
			return errors.Wrap(err, "discounts")
		}
	}
	return nil
}
