package router_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/config"
	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gateway"
	"github.com/levee-labs/credit-gateway/pricing"
	"github.com/levee-labs/credit-gateway/router"
)

// fakeResolver is never exercised in these tests — the unauthenticated
// request never reaches it, and the health/metrics routes don't
// require auth at all.
type fakeResolver struct{}

func (fakeResolver) ResolveByKeyHash(ctx context.Context, keyHash string) (domain.HierarchyPath, error) {
	return domain.HierarchyPath{}, nil
}

func testRouter() http.Handler {
	cfg := &config.Config{
		Env:          "test",
		MaxBodyBytes: 1 << 20,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	gw := gateway.NewHandler(log, nil, nil, nil, nil, nil, nil, nil, nil)
	return router.New(cfg, log, gw, fakeResolver{}, pricing.NewStore(nil))
}

func TestHealthEndpoints(t *testing.T) {
	r := testRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rw := httptest.NewRecorder()
		r.ServeHTTP(rw, req)
		require.Equal(t, http.StatusOK, rw.Result().StatusCode, path)
	}
}

func TestChatCompletionsRequiresAuth(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/gateway/v1/chat/completions", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Result().StatusCode)
}

func TestSecurityHeadersPresent(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, "nosniff", rw.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rw.Header().Get("X-Frame-Options"))
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
}

func TestBodyTooLargeRejected(t *testing.T) {
	cfg := &config.Config{Env: "test", MaxBodyBytes: 10}
	log := zerolog.New(io.Discard)
	gw := gateway.NewHandler(log, nil, nil, nil, nil, nil, nil, nil, nil)
	r := router.New(cfg, log, gw, fakeResolver{}, pricing.NewStore(nil))

	req := httptest.NewRequest(http.MethodPost, "/gateway/v1/chat/completions", nil)
	req.ContentLength = 1 << 20
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rw.Result().StatusCode)
}
