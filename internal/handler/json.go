package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
)

// decodeCartRequest parses
//
//	{"items":[{"variantId":"v1","quantity":2,"priceInCents":1000}],
//	 "customerId":"c1","couponCode":"SAVE10","saleActive":false}
//
// where the coupon field name is codeField. Unknown fields are ignored.
func decodeCartRequest(data []byte, codeField string) (checkout.QuoteRequest, error) {
	var req checkout.QuoteRequest
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeLineItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "customerId":
			req.CustomerID, err = optString(d)
		case codeField:
			req.CouponCode, err = optString(d)
		case "saleActive":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.SaleActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return req, errors.Wrap(err, "invalid request body")
	}
	return req, nil
}

func decodeLineItem(d *jx.Decoder) (discount.LineItem, error) {
	var item discount.LineItem
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "variantId":
			item.VariantID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int64()
		case "priceInCents":
			item.PriceInCents, err = d.Int64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return item, err
	}
	if item.VariantID == "" {
		return item, errors.New("variantId required")
	}
	return item, nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	var e jx.Encoder
	enc(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeQuote(q *checkout.Quote) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			if q.Store != nil {
				e.Field("currency", func(e *jx.Encoder) { e.Str(q.Store.Currency) })
			}
			encodeResultFields(e, q.Result)
			if q.Coupon != nil {
				e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, *q.Coupon) })
			}
		})
	}
}

func encodeValidCoupon(d *discount.Discount) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, *d) })
		})
	}
}

func encodeOrder(res *checkout.PlaceOrderResult) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		o := res.Order
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
			if o.CouponCode != "" {
				e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
			}
			e.Field("processorCouponIds", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range res.ProcessorCouponIDs {
						e.Str(id)
					}
				})
			})
			e.Field("pricing", encodeQuote(res.Quote))
		})
	}
}

func encodeResultFields(e *jx.Encoder, res discount.Result) {
	cents := []struct {
		name  string
		value int64
	}{
		{"originalSubtotalInCents", res.OriginalSubtotalInCents},
		{"discountedSubtotalInCents", res.DiscountedSubtotalInCents},
		{"productDiscountInCents", res.ProductDiscountInCents},
		{"orderDiscountInCents", res.OrderDiscountInCents},
		{"shippingInCents", res.ShippingInCents},
		{"discountedShippingInCents", res.DiscountedShippingInCents},
		{"totalInCents", res.TotalInCents},
	}
	for _, c := range cents {
		e.Field(c.name, func(e *jx.Encoder) { e.Int64(c.value) })
	}

	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i, item := range res.Items {
				original := item.PriceInCents
				if i < len(res.OriginalItems) {
					original = res.OriginalItems[i].PriceInCents
				}
				e.Obj(func(e *jx.Encoder) {
					e.Field("variantId", func(e *jx.Encoder) { e.Str(item.VariantID) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int64(item.Quantity) })
					e.Field("priceInCents", func(e *jx.Encoder) { e.Int64(item.PriceInCents) })
					e.Field("originalPriceInCents", func(e *jx.Encoder) { e.Int64(original) })
				})
			}
		})
	})
	e.Field("appliedDiscounts", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, a := range res.Applied {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
					e.Field("code", func(e *jx.Encoder) { e.Str(a.Code) })
					e.Field("type", func(e *jx.Encoder) { e.Str(a.Type.String()) })
				})
			}
		})
	})
	e.Field("itemDiscounts", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, item := range res.ItemDiscounts {
				e.Obj(func(e *jx.Encoder) {
					e.Field("variantId", func(e *jx.Encoder) { e.Str(item.VariantID) })
					e.Field("discountId", func(e *jx.Encoder) { e.Str(item.DiscountID) })
				})
			}
		})
	})
}

func encodeCoupon(e *jx.Encoder, d discount.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(d.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
		e.Field("type", func(e *jx.Encoder) { e.Str(d.Type.String()) })
		e.Field("amountType", func(e *jx.Encoder) { e.Str(d.AmountType.String()) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(d.Amount.String()) })
	})
}
