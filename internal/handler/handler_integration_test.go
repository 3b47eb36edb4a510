//go:build integration

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/auth"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/checkout"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/coupon"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/seed"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/storage/postgres"
)

const (
	e2eKey     = "integration-test-key"
	e2eStore   = "/api/stores/atomic-trade"
	fixtureRel = "../../db/seed/store.json"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type pricingResponse struct {
	Currency                  string `json:"currency"`
	OriginalSubtotalInCents   int64  `json:"originalSubtotalInCents"`
	DiscountedSubtotalInCents int64  `json:"discountedSubtotalInCents"`
	ProductDiscountInCents    int64  `json:"productDiscountInCents"`
	OrderDiscountInCents      int64  `json:"orderDiscountInCents"`
	DiscountedShippingInCents int64  `json:"discountedShippingInCents"`
	TotalInCents              int64  `json:"totalInCents"`
	Coupon                    *struct {
		Code string `json:"code"`
	} `json:"coupon"`
}

type orderResponse struct {
	OrderID    string          `json:"orderId"`
	CouponCode string          `json:"couponCode"`
	Pricing    pricingResponse `json:"pricing"`
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pricing",
				"POSTGRES_PASSWORD": "pricing",
				"POSTGRES_DB":       "pricing",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx,
		fmt.Sprintf("postgres://pricing:pricing@%s:%s/pricing?sslmode=disable", host, port.Port()), 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	return pool
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	pool := startPostgres(t)

	fixture, err := seed.Load(fixtureRel)
	require.NoError(t, err)
	seeder := postgres.NewSeeder(pool)
	require.NoError(t, fixture.Apply(ctx, seeder, time.Now().Add(-time.Minute)))
	require.NoError(t, seeder.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(testPepper, e2eKey),
		Name:    "integration",
		Scopes:  []string{auth.ScopeQuote, auth.ScopeCreateOrder},
	}))

	discounts := postgres.NewDiscountRepository(pool)
	svc, err := checkout.NewService(
		postgres.NewCatalogRepository(pool),
		discounts,
		coupon.NewRepoValidator(discounts),
		postgres.NewOrderRepository(pool),
		checkout.Options{},
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(svc).Mount(r, NewAuthenticator(postgres.NewAPIKeyRepository(pool), testPepper))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, key, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestEndToEnd(t *testing.T) {
	srv := startServer(t)

	const threeTees = `{"items":[{"variantId":"var-tee-s","quantity":3,"priceInCents":2800}]`

	t.Run("automatic discount", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/quote", e2eKey, threeTees+`}`)
		require.Equal(t, http.StatusOK, status, string(body))

		q := decodeJSON[pricingResponse](t, body)
		assert.Equal(t, "usd", q.Currency)
		assert.Equal(t, int64(8400), q.OriginalSubtotalInCents)
		assert.Equal(t, int64(1260), q.ProductDiscountInCents)
		assert.Equal(t, int64(7140), q.DiscountedSubtotalInCents)
		assert.Equal(t, int64(799), q.DiscountedShippingInCents)
		assert.Equal(t, int64(7939), q.TotalInCents)
		assert.Nil(t, q.Coupon)
	})

	t.Run("submitted prices are replaced by catalog prices", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/quote", e2eKey,
			`{"items":[{"variantId":"var-tee-s","quantity":3,"priceInCents":99999}]}`)
		require.Equal(t, http.StatusOK, status, string(body))

		q := decodeJSON[pricingResponse](t, body)
		assert.Equal(t, int64(8400), q.OriginalSubtotalInCents)
		assert.Equal(t, int64(7939), q.TotalInCents)
	})

	t.Run("oversized quantity", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/quote", e2eKey,
			`{"items":[{"variantId":"var-tee-s","quantity":9223372036854776,"priceInCents":1000}]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	})

	t.Run("order coupon", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/quote", e2eKey, threeTees+`,"couponCode":"welcome10"}`)
		require.Equal(t, http.StatusOK, status, string(body))

		q := decodeJSON[pricingResponse](t, body)
		assert.Equal(t, int64(714), q.OrderDiscountInCents)
		assert.Equal(t, int64(7225), q.TotalInCents)
		require.NotNil(t, q.Coupon)
		assert.Equal(t, "WELCOME10", q.Coupon.Code)
	})

	t.Run("expired coupon", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/coupons/validate", e2eKey, threeTees+`,"code":"SPRING20"}`)
		require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
		assert.Equal(t, coupon.ErrOutOfWindow.Error(), decodeJSON[errorResponse](t, body).Message)
	})

	t.Run("valid coupon", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/coupons/validate", e2eKey, threeTees+`,"code":"welcome10"}`)
		require.Equal(t, http.StatusOK, status, string(body))
		assert.JSONEq(t, `true`, string(mustField(t, body, "valid")))
	})

	t.Run("place order", func(t *testing.T) {
		status, body := post(t, srv, e2eStore+"/orders", e2eKey,
			`{"items":[{"variantId":"var-cap","quantity":1,"priceInCents":3000}],"couponCode":"CAPS5"}`)
		require.Equal(t, http.StatusCreated, status, string(body))

		o := decodeJSON[orderResponse](t, body)
		assert.NotEmpty(t, o.OrderID)
		assert.Equal(t, "CAPS5", o.CouponCode)
		assert.Equal(t, int64(500), o.Pricing.ProductDiscountInCents)
		assert.Equal(t, int64(3299), o.Pricing.TotalInCents)
	})

	t.Run("unknown store", func(t *testing.T) {
		status, body := post(t, srv, "/api/stores/nope/quote", e2eKey, threeTees+`}`)
		assert.Equal(t, http.StatusNotFound, status, string(body))
	})

	t.Run("missing key", func(t *testing.T) {
		status, _ := post(t, srv, e2eStore+"/quote", "", threeTees+`}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong key", func(t *testing.T) {
		status, _ := post(t, srv, e2eStore+"/quote", "wrong-key", threeTees+`}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func mustField(t *testing.T, body []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[name]
	require.True(t, ok, "field %s missing in %s", name, body)
	return v
}
