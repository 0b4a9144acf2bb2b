package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/leadvault/backend/internal/analytics"
	"github.com/leadvault/backend/internal/auth"
	"github.com/leadvault/backend/internal/config"
	"github.com/leadvault/backend/internal/dashboard"
	"github.com/leadvault/backend/internal/database"
	"github.com/leadvault/backend/internal/directory"
	"github.com/leadvault/backend/internal/handlers"
	"github.com/leadvault/backend/internal/jobs"
	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/logging"
	"github.com/leadvault/backend/internal/middleware"
	"github.com/leadvault/backend/internal/payments"
	"github.com/leadvault/backend/internal/repository"
	"github.com/leadvault/backend/internal/router"
	"github.com/leadvault/backend/internal/services"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running and DATABASE_URL is correct", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	listRepo := repository.NewListRepo(pool)
	companyRepo := repository.NewCompanyRepo(pool)
	personRepo := repository.NewPersonRepo(pool)
	analyticsRepo := repository.NewAnalyticsRepo(pool)

	// Ledger and the flows that charge it
	ledgerSvc := ledger.NewService(pool, userRepo, creditRepo, logger)

	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}
	dir := services.NewDirectory(personRepo, companyRepo, validator, logger)
	listSvc := services.NewListService(listRepo, dir, ledgerSvc, services.ListCosts{
		CreateList:       cfg.CreateListCost,
		AddMember:        cfg.AddMemberCost,
		ChargeDuplicates: cfg.ChargeDuplicateMembers,
	}, logger)
	applier := services.NewPaymentApplier(ledgerSvc, logger)

	stripe := payments.New(payments.Config{
		SecretKey:      cfg.StripeSecretKey,
		WebhookSecret:  cfg.StripeWebhookSecret,
		PriceCents:     cfg.CreditPriceCents,
		FrontendOrigin: cfg.FrontendOrigin,
		AppName:        cfg.AppName,
	}, nil)
	if cfg.StripeWebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be refused")
	}

	// Background jobs
	riverClient, err := jobs.NewClient(pool, ledgerSvc, cfg.ReconcileInterval, logger)
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(userRepo, cfg.JWTSecret)
	api := router.New(router.Handlers{
		Auth:    auth.NewHandler(authSvc, middleware.Principal, cfg.CookieSecure, logger),
		Lists:   handlers.NewListHandler(listSvc, logger),
		Credits: handlers.NewCreditHandler(ledgerSvc, logger),
		Payments: &handlers.PaymentHandler{
			Verifier:     stripe,
			Applier:      applier,
			Checkout:     stripe,
			Transactions: creditRepo,
			Logger:       logger,
		},
		Directory: directory.NewHandler(dir, middleware.Principal, logger),
		Seed:      directory.NewSeedHandler(services.NewSeeder(dir, personRepo, logger), cfg.SeedSecret, logger),
		Analytics: analytics.NewHandler(analytics.NewService(analyticsRepo, logger), logger),
		Dashboard: dashboard.NewHandler(userRepo, jobs.NewEnqueuer(riverClient), logger),
	}, authSvc, pool.Ping, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown failed", "error", err)
	}
}
