package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/markethours"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/model"
)

// ErrOutsideSession is returned by Sync when the exchange is not in a
// state worth syncing.
var ErrOutsideSession = errors.New("outside trading session")

// Fetcher produces a snapshot. *Source implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (model.Snapshot, error)
}

// Ingester stores a snapshot and derives its summary. *dashboard.Service
// implements it.
type Ingester interface {
	Ingest(ctx context.Context, snap model.Snapshot) (dashboard.IngestResult, error)
}

// Syncer pulls broker snapshots into the engine on a cron schedule.
type Syncer struct {
	source   Fetcher
	ingest   Ingester
	calendar *markethours.Calendar
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	timeout  time.Duration

	cron *cron.Cron
}

// NewSyncer creates a Syncer. A nil calendar uses markethours.Default.
func NewSyncer(src Fetcher, ing Ingester, cal *markethours.Calendar, m *metrics.Metrics, l *slog.Logger) *Syncer {
	if cal == nil {
		cal = markethours.Default
	}
	return &Syncer{
		source:   src,
		ingest:   ing,
		calendar: cal,
		metrics:  m,
		log:      logger.Component(l, "brokersync"),
		now:      time.Now,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Sync fetches and ingests one snapshot while the market is open or just
// closed (so the settled closing prices are captured). Outside those
// states it returns ErrOutsideSession.
func (s *Syncer) Sync(ctx context.Context) (dashboard.IngestResult, error) {
	switch st := s.calendar.State(s.now()); st {
	case markethours.Open, markethours.PostClose:
	default:
		s.metrics.ObserveBrokerSync("skipped", s.now())
		return dashboard.IngestResult{}, fmt.Errorf("%w: %s", ErrOutsideSession, st)
	}
	return s.SyncNow(ctx)
}

// SyncNow fetches and ingests one snapshot regardless of market state.
func (s *Syncer) SyncNow(ctx context.Context) (res dashboard.IngestResult, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.ObserveBrokerSync(result, start)
	}()

	snap, err := s.source.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	res, err = s.ingest.Ingest(ctx, snap)
	if err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}
	s.log.Info("snapshot synced",
		slog.String("snapshot_id", res.Snapshot.ID),
		slog.Int("records", res.Snapshot.RecordCount),
		slog.Float64("current_value", res.Summary.Summary.TotalCurrentValue),
		slog.Float64("pnl", res.Summary.Summary.OverallPnL),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

// Schedule registers Sync on spec, a six-field cron expression with
// seconds. Each run gets its own timeout derived from ctx.
func (s *Syncer) Schedule(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if _, err := s.Sync(runCtx); err != nil {
			if errors.Is(err, ErrOutsideSession) {
				s.log.Debug("sync skipped", slog.String("reason", err.Error()))
				return
			}
			s.log.Error("sync failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.log.Info("sync scheduled", slog.String("schedule", spec))
	return nil
}

// Start runs the scheduler in the background.
func (s *Syncer) Start() { s.cron.Start() }

// Stop stops the scheduler and waits for a running sync to finish.
func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
}
