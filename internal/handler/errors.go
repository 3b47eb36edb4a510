package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/coupon"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/order"
)

// writeError writes {"code":status,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeDomainError maps checkout errors to responses. Coupon rejections keep
// their customer-facing message; unexpected errors are logged and hidden.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		invalidQty   *checkout.InvalidQuantityError
		invalidPrice *checkout.InvalidPriceError
	)
	if msg, ok := coupon.Message(err); ok {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	switch {
	case errors.Is(err, checkout.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, checkout.ErrEmptyItems.Error())
	case errors.As(err, &invalidQty):
		writeError(w, http.StatusUnprocessableEntity, invalidQty.Error())
	case errors.As(err, &invalidPrice):
		writeError(w, http.StatusUnprocessableEntity, invalidPrice.Error())
	case errors.Is(err, checkout.ErrSubtotalTooLarge):
		writeError(w, http.StatusUnprocessableEntity, checkout.ErrSubtotalTooLarge.Error())
	case errors.Is(err, catalog.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, catalog.ErrStoreNotFound.Error())
	case errors.Is(err, order.ErrRedemptionConflict):
		writeError(w, http.StatusConflict, order.ErrRedemptionConflict.Error())
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
