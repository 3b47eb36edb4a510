package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/auth"
	"github.com/ahunnii/atomic-trade-backend-sub001/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

type apiKeyCtxKey struct{}

// RateLimitKey buckets requests by the key Authenticator accepted. Requests
// that carry no authenticated key fall back to the client IP.
func RateLimitKey(r *http.Request) string {
	if info, ok := APIKeyFromContext(r.Context()); ok {
		return "key:" + info.ID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

// APIKeyFromContext returns the key authenticated by Authenticator.
func APIKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// Authenticator checks API keys by their HMAC-SHA256 hash.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given key repository
// and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Require returns a middleware that admits requests whose key has scope and
// may act on the {storeID} route parameter. Unknown keys get 401, keys
// lacking permission get 403.
func (a *Authenticator) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, err := a.authenticate(ctx, r.Header.Get(APIKeyHeader))
			if err != nil {
				if !errors.Is(err, errUnauthorized) {
					zctx.From(ctx).Error("Authenticate API key", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "internal error")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			if storeID := chi.URLParam(r, "storeID"); storeID != "" && !info.AllowsStore(storeID) {
				writeError(w, http.StatusForbidden, "api key not allowed for store")
				return
			}

			ctx = context.WithValue(ctx, apiKeyCtxKey{}, info)
			ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key_id", info.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errUnauthorized = errors.New("unauthorized")

func (a *Authenticator) authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, errUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The repository matched on the hash; compare again in constant time in
	// case it returned a different row.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}
