package discount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/catalog"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCalculator() *Calculator {
	c := NewCalculator()
	c.now = func() time.Time { return testNow }
	return c
}

func activeDiscount(id string, typ Type, amountType AmountType, amount string) Discount {
	return Discount{
		ID:          id,
		Code:        id,
		Type:        typ,
		AmountType:  amountType,
		Amount:      d(amount),
		IsActive:    true,
		IsAutomatic: true,
		StartsAt:    testNow.Add(-time.Hour),
	}
}

func allProducts(d Discount) Discount {
	d.ApplyToAllProducts = true
	return d
}

func singleItemCart() Input {
	return Input{
		Items:           []LineItem{{VariantID: "v1", Quantity: 2, PriceInCents: 1000}},
		Variants:        []catalog.Variant{{ID: "v1", PriceInCents: 1000}},
		ShippingInCents: 500,
	}
}

func TestCalculate_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		discounts     []Discount
		wantPrice     int64
		wantProduct   int64
		wantOrder     int64
		wantShipping  int64
		wantTotal     int64
		wantAppliedID []string
	}{
		{
			name:          "fixed product discount on all products",
			discounts:     []Discount{allProducts(activeDiscount("fixed200", TypeProduct, AmountFixed, "200"))},
			wantPrice:     800,
			wantProduct:   400,
			wantShipping:  500,
			wantTotal:     2100,
			wantAppliedID: []string{"fixed200"},
		},
		{
			name:          "percentage product discount",
			discounts:     []Discount{allProducts(activeDiscount("half", TypeProduct, AmountPercentage, "50"))},
			wantPrice:     500,
			wantProduct:   1000,
			wantShipping:  500,
			wantTotal:     1500,
			wantAppliedID: []string{"half"},
		},
		{
			name: "minimum quantity not met",
			discounts: func() []Discount {
				dd := allProducts(activeDiscount("min3", TypeProduct, AmountFixed, "200"))
				dd.MinimumQuantity = ptr[int64](3)
				return []Discount{dd}
			}(),
			wantPrice:    1000,
			wantShipping: 500,
			wantTotal:    2500,
		},
		{
			name: "order discounts stack",
			discounts: []Discount{
				activeDiscount("flat100", TypeOrder, AmountFixed, "100"),
				activeDiscount("pct10", TypeOrder, AmountPercentage, "10"),
			},
			wantPrice:     1000,
			wantOrder:     300,
			wantShipping:  500,
			wantTotal:     2200,
			wantAppliedID: []string{"flat100", "pct10"},
		},
		{
			name:          "free shipping",
			discounts:     []Discount{activeDiscount("ship", TypeShipping, AmountFixed, "0")},
			wantPrice:     1000,
			wantTotal:     2000,
			wantAppliedID: []string{"ship"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := singleItemCart()
			in.Discounts = tt.discounts

			res := newTestCalculator().Calculate(in)

			require.Len(t, res.Items, 1)
			assert.Equal(t, tt.wantPrice, res.Items[0].PriceInCents)
			assert.Equal(t, int64(2000), res.OriginalSubtotalInCents)
			assert.Equal(t, tt.wantProduct, res.ProductDiscountInCents)
			assert.Equal(t, tt.wantOrder, res.OrderDiscountInCents)
			assert.Equal(t, int64(500), res.ShippingInCents)
			assert.Equal(t, tt.wantShipping, res.DiscountedShippingInCents)
			assert.Equal(t, tt.wantTotal, res.TotalInCents)

			var ids []string
			for _, a := range res.Applied {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.wantAppliedID, ids)
		})
	}
}

func TestCalculate_OrderDiscountsAreAdditive(t *testing.T) {
	in := Input{
		Items:    []LineItem{{VariantID: "v1", Quantity: 1, PriceInCents: 1000}},
		Variants: []catalog.Variant{{ID: "v1", PriceInCents: 1000}},
		Discounts: []Discount{
			activeDiscount("o1", TypeOrder, AmountFixed, "100"),
			activeDiscount("o2", TypeOrder, AmountPercentage, "10"),
		},
	}

	res := newTestCalculator().Calculate(in)
	assert.Equal(t, int64(200), res.OrderDiscountInCents)
	assert.Equal(t, int64(800), res.TotalInCents)

	in.Items[0].PriceInCents = 10000
	in.Variants[0].PriceInCents = 10000
	in.Discounts = []Discount{
		activeDiscount("o1", TypeOrder, AmountPercentage, "10"),
		activeDiscount("o2", TypeOrder, AmountPercentage, "10"),
	}
	res = newTestCalculator().Calculate(in)
	assert.Equal(t, int64(2000), res.OrderDiscountInCents)
}

func TestCalculate_ProductDiscountsBestOf(t *testing.T) {
	in := singleItemCart()
	in.Discounts = []Discount{
		allProducts(activeDiscount("pct10", TypeProduct, AmountPercentage, "10")),
		allProducts(activeDiscount("fixed300", TypeProduct, AmountFixed, "300")),
		allProducts(activeDiscount("pct20", TypeProduct, AmountPercentage, "20")),
	}

	res := newTestCalculator().Calculate(in)

	assert.Equal(t, int64(700), res.Items[0].PriceInCents)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "fixed300", res.Applied[0].ID)
	assert.Equal(t, []ItemDiscount{{VariantID: "v1", DiscountID: "fixed300"}}, res.ItemDiscounts)
}

func TestCalculate_TieKeepsEarlierDiscount(t *testing.T) {
	in := singleItemCart()
	in.Discounts = []Discount{allProducts(activeDiscount("auto", TypeProduct, AmountFixed, "200"))}
	coupon := allProducts(activeDiscount("coupon", TypeProduct, AmountPercentage, "20"))
	coupon.IsAutomatic = false
	in.Coupon = &coupon

	res := newTestCalculator().Calculate(in)

	assert.Equal(t, int64(800), res.Items[0].PriceInCents)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "auto", res.Applied[0].ID)
}

func TestCalculate_CouponCompetesWithAutomaticDiscounts(t *testing.T) {
	in := singleItemCart()
	in.Discounts = []Discount{allProducts(activeDiscount("auto", TypeProduct, AmountFixed, "100"))}
	coupon := allProducts(activeDiscount("coupon", TypeProduct, AmountPercentage, "25"))
	in.Coupon = &coupon

	res := newTestCalculator().Calculate(in)

	assert.Equal(t, int64(750), res.Items[0].PriceInCents)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "coupon", res.Applied[0].ID)
	assert.Len(t, in.Discounts, 1)
}

func TestCalculate_AutomaticDiscountRedeemedAsCouponCountsOnce(t *testing.T) {
	auto := activeDiscount("AUTO10", TypeOrder, AmountPercentage, "10")

	tests := []struct {
		name    string
		product bool
		d       Discount
		want    int64
	}{
		{name: "order", d: auto, want: 1000},
		{name: "product", product: true, d: allProducts(activeDiscount("PROD10", TypeProduct, AmountPercentage, "10")), want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redeemed := tt.d
			in := Input{
				Items:     []LineItem{{VariantID: "v1", Quantity: 1, PriceInCents: 10000}},
				Variants:  []catalog.Variant{{ID: "v1", PriceInCents: 10000}},
				Discounts: []Discount{tt.d},
				Coupon:    &redeemed,
			}

			res := newTestCalculator().Calculate(in)

			if tt.product {
				assert.Equal(t, tt.want, res.ProductDiscountInCents)
				assert.Zero(t, res.OrderDiscountInCents)
			} else {
				assert.Equal(t, tt.want, res.OrderDiscountInCents)
				assert.Zero(t, res.ProductDiscountInCents)
			}
			require.Len(t, res.Applied, 1)
			assert.Equal(t, tt.d.ID, res.Applied[0].ID)
			assert.Equal(t, int64(9000), res.TotalInCents)
		})
	}
}

func TestCalculate_ShippingIsBinary(t *testing.T) {
	for _, shipping := range []int64{0, 1, 500, 1_000_000} {
		in := singleItemCart()
		in.ShippingInCents = shipping

		res := newTestCalculator().Calculate(in)
		assert.Equal(t, shipping, res.DiscountedShippingInCents)

		in.Discounts = []Discount{
			activeDiscount("ship-a", TypeShipping, AmountPercentage, "10"),
			activeDiscount("ship-b", TypeShipping, AmountFixed, "1"),
		}
		res = newTestCalculator().Calculate(in)
		assert.Zero(t, res.DiscountedShippingInCents)
		require.Len(t, res.Applied, 1)
		assert.Equal(t, "ship-a", res.Applied[0].ID)
	}
}

func TestCalculate_NeverNegative(t *testing.T) {
	in := singleItemCart()
	in.Discounts = []Discount{
		allProducts(activeDiscount("huge-fixed", TypeProduct, AmountFixed, "999999")),
		activeDiscount("huge-order", TypeOrder, AmountFixed, "999999"),
		activeDiscount("pct-over", TypeOrder, AmountPercentage, "150"),
	}

	res := newTestCalculator().Calculate(in)

	assert.Zero(t, res.Items[0].PriceInCents)
	assert.Zero(t, res.DiscountedSubtotalInCents)
	assert.Zero(t, res.TotalInCents)
}

func TestCalculate_RawLedgerPerItem(t *testing.T) {
	in := Input{
		Items: []LineItem{
			{VariantID: "v1", Quantity: 1, PriceInCents: 1000},
			{VariantID: "v2", Quantity: 3, PriceInCents: 500},
		},
		Variants: []catalog.Variant{
			{ID: "v1", PriceInCents: 1000},
			{ID: "v2", PriceInCents: 500},
		},
		Discounts: []Discount{
			allProducts(activeDiscount("p10", TypeProduct, AmountPercentage, "10")),
			activeDiscount("o50", TypeOrder, AmountFixed, "50"),
			activeDiscount("ship", TypeShipping, AmountFixed, "0"),
		},
		ShippingInCents: 700,
	}

	res := newTestCalculator().Calculate(in)

	assert.Equal(t, []AppliedDiscount{
		{ID: "p10", Code: "p10", Type: TypeProduct},
		{ID: "p10", Code: "p10", Type: TypeProduct},
		{ID: "o50", Code: "o50", Type: TypeOrder},
		{ID: "ship", Code: "ship", Type: TypeShipping},
	}, res.Applied)
	assert.Equal(t, int64(2500), res.OriginalSubtotalInCents)
	assert.Equal(t, int64(900+450*3), res.DiscountedSubtotalInCents)
	assert.Equal(t, int64(250), res.ProductDiscountInCents)
	assert.Equal(t, int64(2250-50), res.TotalInCents)
}

func TestCalculate_UnknownVariantPassesThrough(t *testing.T) {
	in := Input{
		Items: []LineItem{
			{VariantID: "gone", Quantity: 2, PriceInCents: 1234},
			{VariantID: "v1", Quantity: 1, PriceInCents: 900},
		},
		Variants:  []catalog.Variant{{ID: "v1", PriceInCents: 1000}},
		Discounts: []Discount{allProducts(activeDiscount("p50", TypeProduct, AmountPercentage, "50"))},
	}

	res := newTestCalculator().Calculate(in)

	require.Len(t, res.Items, 2)
	assert.Equal(t, in.Items[0], res.Items[0])
	// Known variants are repriced from the catalog, not the submitted price.
	assert.Equal(t, int64(500), res.Items[1].PriceInCents)
	assert.Equal(t, int64(900), res.OriginalItems[1].PriceInCents)
}

func TestCalculate_RoundsHalfAwayFromZero(t *testing.T) {
	in := Input{
		Items:     []LineItem{{VariantID: "v1", Quantity: 1, PriceInCents: 999}},
		Variants:  []catalog.Variant{{ID: "v1", PriceInCents: 999}},
		Discounts: []Discount{allProducts(activeDiscount("half", TypeProduct, AmountPercentage, "50"))},
	}

	res := newTestCalculator().Calculate(in)
	assert.Equal(t, int64(500), res.Items[0].PriceInCents)

	in.Discounts = []Discount{
		activeDiscount("a", TypeOrder, AmountPercentage, "0.05"),
		activeDiscount("b", TypeOrder, AmountPercentage, "0.05"),
	}
	in.Items[0].PriceInCents = 500
	in.Variants[0].PriceInCents = 500
	res = newTestCalculator().Calculate(in)
	// 0.25 + 0.25 rounds once to 1, not 0 + 0.
	assert.Equal(t, int64(1), res.OrderDiscountInCents)
}

func TestCalculate_Deterministic(t *testing.T) {
	in := Input{
		Items: []LineItem{
			{VariantID: "v-shirt-s", Quantity: 3, PriceInCents: 1999},
			{VariantID: "v-cap", Quantity: 1, PriceInCents: 1250},
		},
		Variants: []catalog.Variant{
			{ID: "v-shirt-s", PriceInCents: 1999},
			{ID: "v-cap", PriceInCents: 1250},
		},
		Collections: testCollections(),
		Discounts: []Discount{
			func() Discount {
				dd := activeDiscount("summer", TypeProduct, AmountPercentage, "15")
				dd.CollectionIDs = []string{"col-summer"}
				return dd
			}(),
			activeDiscount("o", TypeOrder, AmountPercentage, "7.5"),
		},
		ShippingInCents: 495,
		Now:             testNow,
	}

	first := NewCalculator().Calculate(in)
	for range 10 {
		assert.Equal(t, first, NewCalculator().Calculate(in))
	}
}

func TestCalculate_CustomerRestriction(t *testing.T) {
	in := singleItemCart()
	vip := activeDiscount("vip", TypeOrder, AmountFixed, "500")
	vip.CustomerIDs = []string{"c-vip"}
	in.Discounts = []Discount{vip}

	res := newTestCalculator().Calculate(in)
	assert.Zero(t, res.OrderDiscountInCents)

	in.CustomerID = "c-vip"
	res = newTestCalculator().Calculate(in)
	assert.Equal(t, int64(500), res.OrderDiscountInCents)
}
