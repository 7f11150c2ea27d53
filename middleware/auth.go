package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/identity"
)

type contextKey string

// HierarchyContextKey stores the resolved domain.HierarchyPath for the
// authenticated agent in request context.
const HierarchyContextKey contextKey = "hierarchy_path"

// HierarchyResolver authenticates a key hash and resolves the caller's
// full hierarchy path. *identity.Store implements it.
type HierarchyResolver interface {
	ResolveByKeyHash(ctx context.Context, keyHash string) (domain.HierarchyPath, error)
}

// AuthMiddleware validates bearer tokens on incoming requests against
// the api_keys table, caching a successful hierarchy resolution briefly
// so a hot agent doesn't re-run the four-table join on every call.
type AuthMiddleware struct {
	logger   zerolog.Logger
	resolver HierarchyResolver
	cache    sync.Map
	cacheTTL time.Duration
}

type cachedPath struct {
	path      domain.HierarchyPath
	expiresAt time.Time
}

func NewAuthMiddleware(logger zerolog.Logger, resolver HierarchyResolver) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, resolver: resolver, cacheTTL: 30 * time.Second}
}

// Handler authenticates the request and, on success, stores the
// resolved HierarchyPath in context for downstream handlers.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := identity.ExtractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeAuthError(w, "missing or malformed Authorization header")
			return
		}

		keyHash := identity.HashAPIKey(token)

		if cached, ok := am.cache.Load(keyHash); ok {
			cp := cached.(*cachedPath)
			if time.Now().Before(cp.expiresAt) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), HierarchyContextKey, cp.path)))
				return
			}
			am.cache.Delete(keyHash)
		}

		path, err := am.resolver.ResolveByKeyHash(r.Context(), keyHash)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) || errors.Is(err, identity.ErrRevoked) {
				writeAuthError(w, "invalid or revoked API key")
				return
			}
			am.logger.Error().Err(err).Msg("resolving hierarchy path")
			writeAuthError(w, "authentication failed")
			return
		}

		am.cache.Store(keyHash, &cachedPath{path: path, expiresAt: time.Now().Add(am.cacheTTL)})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), HierarchyContextKey, path)))
	})
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "AUTH_FAILED", "message": message})
}

// HierarchyFromContext extracts the authenticated agent's resolved path.
func HierarchyFromContext(ctx context.Context) (domain.HierarchyPath, bool) {
	v, ok := ctx.Value(HierarchyContextKey).(domain.HierarchyPath)
	return v, ok
}
