package main

import (
	"context"
	"fmt"
	"net/http"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chapsmart/chappay/internal/config"
	"github.com/chapsmart/chappay/pkg/api"
	"github.com/chapsmart/chappay/pkg/app"
	"github.com/chapsmart/chappay/pkg/backend"
	"github.com/chapsmart/chappay/pkg/rates"
	"github.com/chapsmart/chappay/pkg/sentry"
	"github.com/chapsmart/chappay/pkg/session"
)

func main() {
	cfg := config.Load()
	log := app.Logger(cfg.App.LogLevel)

	provider := rates.NewProvider(log, rates.Options{
		Primary:    rates.BinanceSource(cfg.Rates.PrimaryURL),
		Secondary:  rates.OKXSource(cfg.Rates.SecondaryURL),
		Default:    cfg.Rates.DefaultBTCUSD,
		Retries:    cfg.Rates.Retries,
		RetryDelay: cfg.Rates.RetryDelay,
		Interval:   cfg.Rates.RefreshInterval,
		WarnFn: func(msg string) {
			log.Warn(msg)
		},
	})
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	provider.Start(ctx)

	client := backend.NewClient(backend.Options{
		InvoiceURL:     cfg.Backend.InvoiceURL,
		StoreURL:       cfg.Backend.StoreURL,
		FulfillmentURL: cfg.Backend.FulfillmentURL,
		Retries:        cfg.Backend.Retries,
		RetryDelay:     cfg.Backend.RetryDelay,
	})

	manager := session.NewManager(ctx, log, client, session.Options{
		InvoiceTTL:   cfg.Session.InvoiceTTL,
		PollInterval: cfg.Session.PollInterval,
		ReportFn: func(title string, data map[string]any) {
			sentry.Send(title, data, sentrygo.LevelError)
		},
	})

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%v", cfg.App.MetricsPort), metricsMux); err != nil {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	h := api.NewHandler(log, manager, provider, cfg.App.Product, cfg.Variant())
	httpServer := http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.API.Port),
		Handler: api.NewRouter(h),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen and serve", zap.Error(err))
		}
	}()
	log.Info("chappay started",
		zap.String("product", string(cfg.App.Product)),
		zap.Int("port", cfg.API.Port))

	shutdownCtx, cancel := app.WaitForInterrupt()
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
