package checkout

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/coupon"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/order"
)

const instrumentationName = "github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"

// Cart limits. With these bounds no line total or running subtotal can
// overflow int64.
const (
	MaxQuantity        = 100_000
	MaxPriceInCents    = 1_000_000_000
	MaxSubtotalInCents = 1_000_000_000_000
)

// Sentinel errors for cart validation.
var (
	ErrEmptyItems = errors.New("items required")
	// ErrSubtotalTooLarge is returned when the priced cart exceeds
	// MaxSubtotalInCents.
	ErrSubtotalTooLarge = errors.New("cart subtotal is too large")
)

// InvalidQuantityError indicates a line item quantity outside [0, MaxQuantity].
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 0 and %d for variant %s", MaxQuantity, e.VariantID)
}

// InvalidPriceError indicates a line item price outside [0, MaxPriceInCents].
type InvalidPriceError struct {
	VariantID string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price must be between 0 and %d cents for variant %s", MaxPriceInCents, e.VariantID)
}

// DiscountRepository lists the discounts a store applies without a code.
type DiscountRepository interface {
	ListAutomatic(ctx context.Context, storeID string) ([]discount.Discount, error)
}

// ExportRequest carries what a payment collaborator needs to mirror the
// applied discounts as processor coupons.
type ExportRequest struct {
	OrderID   string
	Currency  string
	Result    discount.Result
	Discounts []discount.Discount
	Variants  []catalog.Variant
}

// CouponExporter turns an order's applied discounts into processor coupons
// and returns their processor ids.
type CouponExporter interface {
	ExportCoupons(ctx context.Context, req ExportRequest) ([]string, error)
}

// QuoteRequest is a cart to price.
type QuoteRequest struct {
	StoreID    string
	CustomerID string
	CouponCode string
	Items      []discount.LineItem
	SaleActive bool
}

// Quote is a priced cart.
type Quote struct {
	Store  *catalog.Store
	Result discount.Result
	// Coupon is the validated coupon, nil when no code was entered.
	Coupon *discount.Discount

	discounts []discount.Discount
	variants  []catalog.Variant
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order              *order.Order
	Quote              *Quote
	ProcessorCouponIDs []string
}

// Options configures optional Service collaborators.
type Options struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Exporter       CouponExporter
}

func (o *Options) setDefaults() {
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// Service prices carts and places orders.
type Service struct {
	catalog   catalog.Repository
	discounts DiscountRepository
	coupons   coupon.Validator
	orders    order.Repository
	exporter  CouponExporter
	calc      *discount.Calculator
	now       func() time.Time

	tracer     trace.Tracer
	quotes     metric.Int64Counter
	rejections metric.Int64Counter
	totals     metric.Int64Histogram
}

// NewService creates a checkout Service with the required domain dependencies.
func NewService(
	catalogRepo catalog.Repository,
	discounts DiscountRepository,
	coupons coupon.Validator,
	orders order.Repository,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	s := &Service{
		catalog:   catalogRepo,
		discounts: discounts,
		coupons:   coupons,
		orders:    orders,
		exporter:  opts.Exporter,
		calc:      discount.NewCalculator(),
		now:       time.Now,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if s.quotes, err = meter.Int64Counter("pricing.quotes",
		metric.WithDescription("Number of priced carts"),
	); err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	if s.rejections, err = meter.Int64Counter("pricing.coupon_rejections",
		metric.WithDescription("Number of rejected coupon codes by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}
	if s.totals, err = meter.Int64Histogram("pricing.total_cents",
		metric.WithDescription("Grand total of priced carts"),
		metric.WithUnit("{cent}"),
	); err != nil {
		return nil, errors.Wrap(err, "totals histogram")
	}

	return s, nil
}

// Quote validates the cart, loads everything the pricing engine needs,
// checks the coupon code if present and prices the cart.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	data, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	q := &Quote{Store: data.store, discounts: data.automatic, variants: data.variants}
	if req.CouponCode != "" {
		if q.Coupon, err = s.validateCoupon(ctx, req, data, now); err != nil {
			return nil, err
		}
	}

	q.Result = s.calc.Calculate(discount.Input{
		Items:           data.items,
		Discounts:       data.automatic,
		Collections:     data.collections,
		Variants:        data.variants,
		ShippingInCents: data.store.ShippingInCents,
		CustomerID:      req.CustomerID,
		Coupon:          q.Coupon,
		Now:             now,
	})

	s.quotes.Add(ctx, 1)
	s.totals.Record(ctx, q.Result.TotalInCents)

	return q, nil
}

// PlaceOrder prices the cart, persists the order together with its
// discount redemptions and exports the applied discounts when an exporter
// is configured.
func (s *Service) PlaceOrder(ctx context.Context, req QuoteRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	q, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:         uuid.New().String(),
		StoreID:    req.StoreID,
		CustomerID: req.CustomerID,
		CreatedAt:  s.now(),
	}
	if q.Coupon != nil {
		o.CouponCode = q.Coupon.Code
	}
	o.FromResult(q.Result)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx)
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("store_id", o.StoreID),
		zap.Int64("total_cents", o.TotalInCents),
		zap.Int("applied_discounts", len(o.AppliedDiscounts)),
	)

	res := &PlaceOrderResult{Order: o, Quote: q}
	if s.exporter == nil || len(q.Result.Applied) == 0 {
		return res, nil
	}

	discounts := q.discounts
	if q.Coupon != nil {
		discounts = append(slices.Clip(discounts), *q.Coupon)
	}
	ids, err := s.exporter.ExportCoupons(ctx, ExportRequest{
		OrderID:   o.ID,
		Currency:  q.Store.Currency,
		Result:    q.Result,
		Discounts: discounts,
		Variants:  q.variants,
	})
	if err != nil {
		lg.Warn("Export processor coupons", zap.String("order_id", o.ID), zap.Error(err))
		return res, nil
	}
	res.ProcessorCouponIDs = ids

	return res, nil
}

// ValidateCoupon checks req.CouponCode against the cart without pricing it.
func (s *Service) ValidateCoupon(ctx context.Context, req QuoteRequest) (_ *discount.Discount, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ValidateCoupon")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(req.CouponCode) == "" {
		return nil, coupon.ErrNotFound
	}
	data, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.validateCoupon(ctx, req, data, s.now())
}

type cartData struct {
	// items carry catalog prices for every known variant.
	items       []discount.LineItem
	store       *catalog.Store
	variants    []catalog.Variant
	collections []catalog.Collection
	automatic   []discount.Discount
}

// load validates the cart shape and fetches the store, the cart's variants,
// the store's collections and its automatic discounts concurrently.
func (s *Service) load(ctx context.Context, req QuoteRequest) (*cartData, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if err := checkItems(req.Items); err != nil {
		return nil, err
	}

	var data cartData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if data.store, err = s.catalog.GetStore(gctx, req.StoreID); err != nil {
			return errors.Wrap(err, "get store")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.variants, err = s.catalog.GetVariants(gctx, variantIDs(req.Items)); err != nil {
			return errors.Wrap(err, "get variants")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.collections, err = s.catalog.ListCollections(gctx, req.StoreID); err != nil {
			return errors.Wrap(err, "list collections")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.automatic, err = s.discounts.ListAutomatic(gctx, req.StoreID); err != nil {
			return errors.Wrap(err, "list discounts")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data.items = repriced(req.Items, data.variants)
	if err := checkItems(data.items); err != nil {
		return nil, err
	}
	return &data, nil
}

// checkItems bounds every line and the cart subtotal.
func checkItems(items []discount.LineItem) error {
	var sum int64
	for _, item := range items {
		if item.Quantity < 0 || item.Quantity > MaxQuantity {
			return &InvalidQuantityError{VariantID: item.VariantID}
		}
		if item.PriceInCents < 0 || item.PriceInCents > MaxPriceInCents {
			return &InvalidPriceError{VariantID: item.VariantID}
		}
		sum += item.PriceInCents * item.Quantity
		if sum > MaxSubtotalInCents {
			return ErrSubtotalTooLarge
		}
	}
	return nil
}

// repriced returns a copy of items where every variant found in the catalog
// carries its catalog price. Unknown variants keep the submitted price.
func repriced(items []discount.LineItem, variants []catalog.Variant) []discount.LineItem {
	prices := make(map[string]int64, len(variants))
	for _, v := range variants {
		prices[v.ID] = v.PriceInCents
	}
	out := make([]discount.LineItem, len(items))
	for i, item := range items {
		if price, ok := prices[item.VariantID]; ok {
			item.PriceInCents = price
		}
		out[i] = item
	}
	return out
}

func (s *Service) validateCoupon(ctx context.Context, req QuoteRequest, data *cartData, now time.Time) (*discount.Discount, error) {
	cart := coupon.Cart{
		Items:       data.items,
		Variants:    data.variants,
		Collections: data.collections,
		CustomerID:  req.CustomerID,
		SaleActive:  req.SaleActive,
	}
	c, err := s.coupons.Validate(ctx, req.StoreID, req.CouponCode, cart, now)
	if err != nil {
		if coupon.IsRejection(err) {
			s.rejections.Add(ctx, 1, metric.WithAttributes(reasonAttr(err)))
			zctx.From(ctx).Debug("Coupon rejected",
				zap.String("store_id", req.StoreID),
				zap.String("code", req.CouponCode),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap(err, "validate coupon")
	}
	return c, nil
}

func variantIDs(items []discount.LineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !slices.Contains(ids, item.VariantID) {
			ids = append(ids, item.VariantID)
		}
	}
	return ids
}

func reasonAttr(err error) attribute.KeyValue {
	return attribute.String("reason", coupon.Reason(err))
}
