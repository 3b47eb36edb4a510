// Package handler exposes the checkout service over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/auth"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

const maxBodyBytes = 1 << 20

// Checkout is the part of checkout.Service the handlers use.
type Checkout interface {
	Quote(ctx context.Context, req checkout.QuoteRequest) (*checkout.Quote, error)
	ValidateCoupon(ctx context.Context, req checkout.QuoteRequest) (*discount.Discount, error)
	PlaceOrder(ctx context.Context, req checkout.QuoteRequest) (*checkout.PlaceOrderResult, error)
}

// Handler serves the pricing API.
type Handler struct {
	checkout Checkout
}

// NewHandler creates a Handler backed by the checkout service.
func NewHandler(c Checkout) *Handler {
	return &Handler{checkout: c}
}

// Mount registers the API routes on r. Every route requires an API key with
// the route's scope. The keyed middlewares run once the key is accepted.
func (h *Handler) Mount(r chi.Router, authn *Authenticator, keyed ...func(http.Handler) http.Handler) {
	r.Route("/api/stores/{storeID}", func(r chi.Router) {
		guard := func(scope string) chi.Router {
			return r.With(authn.Require(scope)).With(keyed...)
		}
		guard(auth.ScopeQuote).Post("/quote", h.Quote)
		guard(auth.ScopeQuote).Post("/coupons/validate", h.ValidateCoupon)
		guard(auth.ScopeCreateOrder).Post("/orders", h.PlaceOrder)
	})
}

// Quote prices a cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r, "couponCode")
	if !ok {
		return
	}
	q, err := h.checkout.Quote(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeQuote(q))
}

// ValidateCoupon checks a coupon code against a cart without pricing it.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r, "code")
	if !ok {
		return
	}
	d, err := h.checkout.ValidateCoupon(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeValidCoupon(d))
}

// PlaceOrder prices the cart and persists it as an order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r, "couponCode")
	if !ok {
		return
	}
	res, err := h.checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeOrder(res))
}

// cartRequest reads and decodes the body. On failure it writes a 400 and
// reports false.
func (h *Handler) cartRequest(w http.ResponseWriter, r *http.Request, codeField string) (checkout.QuoteRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return checkout.QuoteRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "read request body")
		return checkout.QuoteRequest{}, false
	}

	req, err := decodeCartRequest(body, codeField)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return checkout.QuoteRequest{}, false
	}
	req.StoreID = chi.URLParam(r, "storeID")
	return req, true
}
