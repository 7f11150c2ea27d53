package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/levee-labs/credit-gateway/budgetengine"
	"github.com/levee-labs/credit-gateway/config"
	"github.com/levee-labs/credit-gateway/credential"
	"github.com/levee-labs/credit-gateway/dbx"
	"github.com/levee-labs/credit-gateway/gateway"
	"github.com/levee-labs/credit-gateway/identity"
	"github.com/levee-labs/credit-gateway/ledger"
	"github.com/levee-labs/credit-gateway/logger"
	"github.com/levee-labs/credit-gateway/policyengine"
	"github.com/levee-labs/credit-gateway/pricing"
	"github.com/levee-labs/credit-gateway/provider"
	"github.com/levee-labs/credit-gateway/redisclient"
	"github.com/levee-labs/credit-gateway/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("credit gateway starting")

	ctx := context.Background()

	if cfg.RunMigrations {
		if err := dbx.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("running migrations")
		}
		log.Info().Msg("migrations applied")
	}

	pool, err := dbx.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database pool")
	}
	defer pool.Close()

	var rc *redisclient.Client
	if client, err := redisclient.New(cfg); err != nil {
		log.Warn().Err(err).Msg("redis init failed — continuing without the idempotency fast path")
	} else if err := client.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing without the idempotency fast path")
	} else {
		rc = client
		log.Info().Msg("redis connected")
		defer rc.Close()
	}

	cipher, err := credential.NewCipher(cfg.CredentialEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing credential cipher")
	}

	identityStore := identity.NewStore(pool)
	credentialStore := credential.NewStore(pool, cipher)
	pricingStore := pricing.NewStore(pool)
	ledgerStore := ledger.NewStore(pool)
	policyStore := policyengine.NewStore(pool)
	budgetStore := budgetengine.NewStore(pool)

	registry := provider.NewRegistry()
	registerProviders(cfg, registry, log)

	gw := gateway.NewHandler(log, pool, policyStore, budgetStore, ledgerStore, pricingStore, credentialStore, registry, rc)
	r := router.New(cfg, log, gw, identityStore, pricingStore)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

func registerProviders(cfg *config.Config, registry *provider.Registry, log zerolog.Logger) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		registry.Register(provider.NewOpenAIProvider(provider.Config{
			APIKey:  key,
			BaseURL: cfg.ProviderBaseURLs["openai"],
			Timeout: cfg.ProviderTimeout("openai"),
		}))
		log.Info().Msg("registered openai provider")
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		registry.Register(provider.NewAnthropicProvider(provider.Config{
			APIKey:  key,
			BaseURL: cfg.ProviderBaseURLs["anthropic"],
			Timeout: cfg.ProviderTimeout("anthropic"),
		}))
		log.Info().Msg("registered anthropic provider")
	}

	registry.Register(provider.NewMockProvider())
	log.Info().Msg("registered mock provider")
}
