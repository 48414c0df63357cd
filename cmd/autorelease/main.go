// Command autorelease runs one auto-release sweep and exits. Intended
// for cron or a scheduled job in deployments that prefer an external
// trigger over the in-process sweeper.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/config"
	"github.com/novamarkt/platform/internal/fraud"
	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/order"
	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/trust"
	"github.com/novamarkt/platform/internal/user"
)

// nopPublisher drops realtime events; a one-shot job has no clients.
type nopPublisher struct{}

func (nopPublisher) Publish(string, map[string]any) {}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, "text")
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := user.NewPostgresStore(db)
	audits := audit.NewPostgresStore(db)
	listings := listing.NewPostgresStore(db)
	signals := fraud.NewPostgresStore(db)
	orders := order.NewPostgresStore(db)
	trustSvc := trust.NewService(users, orders, signals, trust.NewPostgresSnapshotStore(db))

	providerName := "fake"
	var (
		provider payments.Provider
		payouts  payments.Transferrer
	)
	if cfg.StripeSecretKey != "" {
		sp := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		provider, payouts = sp, sp
		providerName = "stripe"
	} else {
		fp := payments.NewFakeProvider()
		provider, payouts = fp, fp
	}

	svc := order.NewService(
		orders, listings, users, provider, audits, trustSvc, nopPublisher{},
		order.Config{
			FeeRateBPS:   cfg.FeeRateBPS,
			Currency:     cfg.Currency,
			ReleaseAfter: cfg.AutoReleaseAfter,
			ProviderName: providerName,
		},
		order.WithPayouts(payouts),
	)

	ctx := logging.WithLogger(context.Background(), logger)
	released, err := svc.RunAutoReleaseSweep(ctx)
	if err != nil {
		logger.Error("auto-release sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info("auto-release sweep finished", "released", released)
}
