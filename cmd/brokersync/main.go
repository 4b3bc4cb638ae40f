package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/broker"
	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/markethours"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/notification"
	rediscache "portfolio-enginev1/internal/store/redis"
	sqlitestore "portfolio-enginev1/internal/store/sqlite"
)

func main() {
	once := flag.Bool("once", false, "sync a single snapshot and exit, ignoring market hours")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[brokersync] starting...")

	cfg := config.Load()
	bc, err := config.LoadBroker()
	if err != nil {
		log.Fatalf("[brokersync] %v", err)
	}
	slogger := logger.Init("brokersync", logger.ParseLevel(cfg.LogLevel))

	if err := markethours.Default.AddHolidays(cfg.MarketHolidays); err != nil {
		log.Fatalf("[brokersync] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics (long-running mode only) ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.RedisEnabled)
	var metricsSrv *metrics.Server
	if !*once {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, health)
		metricsSrv.Start()
	}

	// ---- SQLite snapshot store ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[brokersync] data dir: %v", err)
	}
	store, err := sqlitestore.Open(sqlitestore.WriterConfig{
		DBPath:        cfg.SQLitePath,
		KeepSnapshots: cfg.KeepSnapshots,
		Metrics:       prom,
	})
	if err != nil {
		log.Fatalf("[brokersync] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	notifier := notification.Build(slogger, notification.Channels{
		WebhookURL:     cfg.AlertWebhookURL,
		TelegramToken:  cfg.AlertTelegramToken,
		TelegramChatID: cfg.AlertTelegramChatID,
	})

	svcCfg := dashboard.Config{
		Store:          store,
		Notifier:       notifier,
		Metrics:        prom,
		Logger:         slogger,
		Alerts:         dashboard.AlertPolicy{DayChangePct: cfg.AlertDayChangePct},
		PledgeRates:    cfg.PledgeRates(),
		HeatmapCeiling: cfg.HeatmapCeiling,
	}

	// ---- Redis: summaries reach portfolio_api through pub/sub ----
	var cache *rediscache.Cache
	if cfg.RedisEnabled {
		cache, err = rediscache.New(rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, prom)
		if err != nil {
			log.Printf("[brokersync] WARNING: redis init failed: %v (snapshots will not be pushed live)", err)
			health.SetRedisConnected(false)
		} else {
			defer cache.Close()
			health.SetRedisConnected(true)
			svcCfg.Cache = cache
			svcCfg.Publisher = cache
		}
	}

	syncer := broker.NewSyncer(broker.NewSource(*bc), dashboard.New(svcCfg), markethours.Default, prom, slogger)

	if *once {
		res, err := syncer.SyncNow(ctx)
		if err != nil {
			log.Fatalf("[brokersync] sync failed: %v", err)
		}
		log.Printf("[brokersync] stored snapshot %s with %d records", res.Snapshot.ID, res.Snapshot.RecordCount)
		return
	}

	if cache != nil {
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}
	go markethours.Watch(ctx, time.Minute, func(st markethours.State) {
		prom.SetMarketState(int(st))
	})

	if err := syncer.Schedule(ctx, cfg.SyncSchedule); err != nil {
		log.Fatalf("[brokersync] %v", err)
	}
	syncer.Start()
	log.Printf("[brokersync] schedule %q, NSE %s", cfg.SyncSchedule, markethours.Default.Status(time.Now()))

	<-sigCh
	log.Println("[brokersync] shutdown signal received, cleaning up...")
	cancel()
	syncer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[brokersync] shutdown complete.")
}
