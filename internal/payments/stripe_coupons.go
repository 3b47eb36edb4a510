// Package payments mirrors priced orders into the payment processor.
package payments

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

type stripeCouponAPI interface {
	New(params *stripe.CouponParams) (*stripe.Coupon, error)
}

var _ checkout.CouponExporter = (*StripeCouponExporter)(nil)

// StripeCouponExporter creates one single-use Stripe coupon per discount
// applied to an order. Catalog product ids are expected to match Stripe
// product ids.
type StripeCouponExporter struct {
	coupons stripeCouponAPI
}

// NewStripeCouponExporter creates an exporter for the given secret key.
func NewStripeCouponExporter(apiKey string, backends *stripe.Backends) (*StripeCouponExporter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, backends)
	return &StripeCouponExporter{coupons: sc.Coupons}, nil
}

// ExportCoupons creates processor coupons for every distinct discount in
// the order's ledger and returns their ids in ledger order.
func (e *StripeCouponExporter) ExportCoupons(ctx context.Context, req checkout.ExportRequest) ([]string, error) {
	byID := make(map[string]discount.Discount, len(req.Discounts))
	for _, d := range req.Discounts {
		byID[d.ID] = d
	}

	var (
		ids  []string
		seen = make(map[string]struct{}, len(req.Result.Applied))
	)
	for _, a := range req.Result.Applied {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}

		d, ok := byID[a.ID]
		if !ok {
			return ids, errors.Errorf("discount %q not in request", a.ID)
		}
		params, ok := e.couponParams(req, d)
		if !ok {
			zctx.From(ctx).Debug("Skip processor coupon",
				zap.String("order_id", req.OrderID),
				zap.String("discount_id", d.ID),
			)
			continue
		}
		params.Context = ctx
		params.SetIdempotencyKey(req.OrderID + ":" + d.ID)

		c, err := e.coupons.New(params)
		if err != nil {
			return ids, errors.Wrapf(err, "create coupon for discount %s", d.ID)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// couponParams maps a discount onto Stripe coupon parameters. It reports
// false when the discount has nothing to express, such as free shipping on
// an order that had no shipping charge.
func (e *StripeCouponExporter) couponParams(req checkout.ExportRequest, d discount.Discount) (*stripe.CouponParams, bool) {
	params := &stripe.CouponParams{
		Name:     stripe.String(couponName(d)),
		Duration: stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.AddMetadata("discount_id", d.ID)
	params.AddMetadata("order_id", req.OrderID)

	switch d.Type {
	case discount.TypeShipping:
		if req.Result.ShippingInCents <= 0 {
			return nil, false
		}
		params.AmountOff = stripe.Int64(req.Result.ShippingInCents)
		params.Currency = stripe.String(req.Currency)
		return params, true
	case discount.TypeProduct:
		products := winningProducts(req, d.ID)
		if len(products) == 0 {
			return nil, false
		}
		params.AppliesTo = &stripe.CouponAppliesToParams{Products: stripe.StringSlice(products)}
	case discount.TypeOrder:
	default:
		return nil, false
	}

	switch d.AmountType {
	case discount.AmountPercentage:
		params.PercentOff = stripe.Float64(d.Amount.InexactFloat64())
	case discount.AmountFixed:
		cents := d.Amount.Round(0).IntPart()
		if cents <= 0 {
			return nil, false
		}
		params.AmountOff = stripe.Int64(cents)
		params.Currency = stripe.String(req.Currency)
	default:
		return nil, false
	}
	return params, true
}

// winningProducts returns the product ids of the variants the discount won.
func winningProducts(req checkout.ExportRequest, discountID string) []string {
	productOf := make(map[string]string, len(req.Variants))
	for _, v := range req.Variants {
		productOf[v.ID] = v.ProductID
	}
	var out []string
	for _, item := range req.Result.ItemDiscounts {
		if item.DiscountID != discountID {
			continue
		}
		p, ok := productOf[item.VariantID]
		if !ok || p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func couponName(d discount.Discount) string {
	if d.Code != "" {
		return d.Code
	}
	return d.ID
}
