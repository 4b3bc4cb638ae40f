package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/gateway"
	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/markethours"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/notification"
	rediscache "portfolio-enginev1/internal/store/redis"
	sqlitestore "portfolio-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[portfolio_api] starting...")

	cfg := config.Load()
	slogger := logger.Init("portfolio_api", logger.ParseLevel(cfg.LogLevel))

	if err := markethours.Default.AddHolidays(cfg.MarketHolidays); err != nil {
		log.Fatalf("[portfolio_api] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.RedisEnabled)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite snapshot store ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[portfolio_api] data dir: %v", err)
	}
	store, err := sqlitestore.Open(sqlitestore.WriterConfig{
		DBPath:        cfg.SQLitePath,
		KeepSnapshots: cfg.KeepSnapshots,
		Metrics:       prom,
	})
	if err != nil {
		log.Fatalf("[portfolio_api] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Printf("[portfolio_api] sqlite ready at %s", cfg.SQLitePath)

	// ---- Hub, optionally fed through Redis pub/sub ----
	hub := gateway.NewHub(prom)

	notifier := notification.Build(slogger, notification.Channels{
		WebhookURL:     cfg.AlertWebhookURL,
		TelegramToken:  cfg.AlertTelegramToken,
		TelegramChatID: cfg.AlertTelegramChatID,
	})

	svcCfg := dashboard.Config{
		Store:          store,
		Publisher:      hub,
		Notifier:       notifier,
		Metrics:        prom,
		Logger:         slogger,
		Alerts:         dashboard.AlertPolicy{DayChangePct: cfg.AlertDayChangePct},
		PledgeRates:    cfg.PledgeRates(),
		HeatmapCeiling: cfg.HeatmapCeiling,
	}

	var cache *rediscache.Cache
	if cfg.RedisEnabled {
		cache, err = rediscache.New(rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, prom)
		if err != nil {
			log.Printf("[portfolio_api] WARNING: redis init failed: %v (continuing without redis)", err)
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			svcCfg.Cache = cache
			svcCfg.Publisher = cache
			go func() {
				if err := rediscache.NewSubscriber(cache.Client()).Run(ctx, hub.Relay); err != nil {
					log.Printf("[portfolio_api] redis subscriber stopped: %v", err)
				}
			}()
			log.Printf("[portfolio_api] redis ready at %s", cfg.RedisAddr)
		}
	}

	if cache != nil {
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}
	go markethours.Watch(ctx, time.Minute, func(st markethours.State) {
		prom.SetMarketState(int(st))
	})

	svc := dashboard.New(svcCfg)

	// ---- HTTP + WS ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, &gateway.API{
		Service: svc,
		Hub:     hub,
		Health:  health,
		Logger:  slogger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.WithRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[portfolio_api] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[portfolio_api] http server: %v", err)
		}
	}()

	log.Printf("[portfolio_api] NSE %s", markethours.Default.Status(time.Now()))

	<-sigCh
	log.Println("[portfolio_api] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[portfolio_api] http shutdown: %v", err)
	}
	hub.Close()
	metricsSrv.Stop(shutdownCtx)
	if cache != nil {
		cache.Close()
	}

	log.Println("[portfolio_api] shutdown complete.")
}
