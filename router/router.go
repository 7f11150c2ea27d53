// Package router wires the gateway's chi HTTP surface: health and
// metrics endpoints, the read-only pricing listing, and the
// authenticated chat-completions endpoint, behind a middleware chain
// of request ID, panic recovery, request logging, body-size limiting,
// bearer auth, and request timeout.
package router

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/levee-labs/credit-gateway/config"
	"github.com/levee-labs/credit-gateway/gateway"
	gwmw "github.com/levee-labs/credit-gateway/middleware"
	"github.com/levee-labs/credit-gateway/metrics"
	"github.com/levee-labs/credit-gateway/pricing"
)

// New returns a configured chi Router with the full middleware chain
// and every route mounted.
func New(cfg *config.Config, appLogger zerolog.Logger, gw *gateway.Handler, resolver gwmw.HierarchyResolver, pricingStore *pricing.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(gwmw.SecurityHeaders)
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Get("/v1/pricing", pricingListHandler(pricingStore, appLogger))

	authMW := gwmw.NewAuthMiddleware(appLogger, resolver)
	timeoutMW := gwmw.NewTimeoutMiddleware(appLogger, cfg)

	r.Route("/gateway/v1", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(timeoutMW.Handler)
		r.Post("/chat/completions", gw.ChatCompletions)
	})

	return r
}

func pricingListHandler(store *pricing.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := store.All(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("listing pricing rules")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"failed to list pricing rules"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"rules": rules})
	}
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("GATEWAY_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
