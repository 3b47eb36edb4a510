package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/auth"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/seed"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		fixtureFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "db/seed/store.json", "path to store fixture JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PRICING_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRICING_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PRICING_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PRICING_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PRICING_API_KEY_PEPPER")
	}
	if apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or PRICING_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile, apiKey, pepper string) error {
	slog.Info("reading fixture", slog.String("path", fixtureFile))

	fixture, err := seed.Load(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "load fixture")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seeder := postgres.NewSeeder(pool)

	if err := fixture.Apply(ctx, seeder, time.Now()); err != nil {
		return errors.Wrap(err, "apply fixture")
	}

	slog.Info("upserted store",
		slog.String("id", fixture.Store.ID),
		slog.Int("products", len(fixture.Products)),
		slog.Int("collections", len(fixture.Collections)),
		slog.Int("discounts", len(fixture.Discounts)),
	)

	if err := seedAPIKey(ctx, seeder, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedAPIKey(ctx context.Context, seeder *postgres.Seeder, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	if err := seeder.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default storefront key",
		Scopes:  []string{auth.ScopeQuote, auth.ScopeCreateOrder},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default storefront key"))

	return nil
}
