// Package dashboard serves portfolio views over the latest stored snapshot.
// It owns the I/O around the pure portfolio engine: loading snapshots,
// caching and publishing summaries, metrics and day-change alerts.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/notification"
	"portfolio-enginev1/internal/portfolio"
	rediscache "portfolio-enginev1/internal/store/redis"
	"portfolio-enginev1/internal/store/sqlite"
)

// Book currency for display strings in alerts.
const currency = "INR"

var (
	// ErrNoSnapshot is returned when nothing has been ingested yet.
	ErrNoSnapshot = errors.New("no snapshot available")
	// ErrHoldingNotFound is returned when a pledge names an unknown record.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrNotPledgeable is returned when a pledge names a non-holding record.
	ErrNotPledgeable = errors.New("record is not a pledgeable holding")
)

// SnapshotStore persists snapshots. *sqlite.Store implements it; a missing
// snapshot is reported with sqlite.ErrNotFound.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) (string, error)
	LatestSnapshot(ctx context.Context) (model.Snapshot, error)
	Snapshot(ctx context.Context, id string) (model.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.SnapshotInfo, error)
}

// SummaryCache holds computed summary views by filter. A miss is reported
// with redis.ErrCacheMiss.
type SummaryCache interface {
	PutSummary(ctx context.Context, filter string, v any) error
	GetSummary(ctx context.Context, filter string, dst any) error
	Invalidate(ctx context.Context, filters ...string) error
}

// Publisher fans freshly computed summaries out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Config wires a Service. Only Store is required.
type Config struct {
	Store     SnapshotStore
	Cache     SummaryCache
	Publisher Publisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	Alerts         AlertPolicy
	PledgeRates    portfolio.PledgeRates
	HeatmapCeiling float64

	Now func() time.Time
}

// Service answers dashboard queries and ingests snapshots.
type Service struct {
	store     SnapshotStore
	cache     SummaryCache
	publisher Publisher
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger

	// cacheMu orders summary write-backs against ingest refreshes; gen
	// counts refreshes so a write-back computed before one is dropped.
	cacheMu sync.Mutex
	gen     uint64

	alerts  AlertPolicy
	gate    alertGate
	rates   portfolio.PledgeRates
	ceiling float64
	now     func() time.Time
}

// New creates a Service from cfg.
func New(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		cache:     cfg.Cache,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		log:       logger.Component(cfg.Logger, "dashboard"),
		alerts:    cfg.Alerts,
		rates:     cfg.PledgeRates,
		ceiling:   cfg.HeatmapCeiling,
		now:       cfg.Now,
	}
	if s.rates == (portfolio.PledgeRates{}) {
		s.rates = portfolio.DefaultPledgeRates()
	}
	if s.ceiling <= 0 {
		s.ceiling = portfolio.DefaultIntensityCeiling
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// PledgeRates returns the defaults applied to pledge requests.
func (s *Service) PledgeRates() portfolio.PledgeRates { return s.rates }

// HeatmapCeiling returns the default intensity ceiling.
func (s *Service) HeatmapCeiling() float64 { return s.ceiling }

// latest loads the newest snapshot, mapping an empty store to ErrNoSnapshot.
func (s *Service) latest(ctx context.Context) (model.Snapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if errors.Is(err, sqlite.ErrNotFound) {
		return model.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("load latest snapshot: %w", err)
	}
	return snap, nil
}

// Summary returns the aggregate for filter over the latest snapshot,
// served from the cache when one is configured and warm.
func (s *Service) Summary(ctx context.Context, filter string) (view SummaryView, err error) {
	defer s.observe(ctx, "summary", time.Now(), &err)

	kind, err := portfolio.ParseFilterKind(filter)
	if err != nil {
		return SummaryView{}, err
	}

	gen := s.generation()
	if s.cache != nil {
		err := s.cache.GetSummary(ctx, string(kind), &view)
		switch {
		case err == nil:
			s.metrics.CountCache("hit")
			return view, nil
		case errors.Is(err, rediscache.ErrCacheMiss):
			s.metrics.CountCache("miss")
		default:
			s.metrics.CountCache("error")
			s.log.Warn("summary cache read failed", append(logger.Attrs(ctx), "filter", kind, "error", err)...)
		}
	}

	snap, err := s.latest(ctx)
	if err != nil {
		return SummaryView{}, err
	}
	view, err = SummaryFor(snap, kind, s.now())
	if err != nil {
		return SummaryView{}, err
	}

	s.writeBack(ctx, kind, view, gen)
	return view, nil
}

func (s *Service) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gen
}

// writeBack caches view only while it is still current: no ingest has
// refreshed the cache since gen was read, and view's snapshot is still the
// latest stored one (another process may have ingested).
func (s *Service) writeBack(ctx context.Context, kind portfolio.FilterKind, view SummaryView, gen uint64) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.gen != gen {
		return
	}
	if cur, err := s.store.LatestSnapshot(ctx); err != nil || cur.ID != view.SnapshotID {
		return
	}
	if err := s.cache.PutSummary(ctx, string(kind), view); err != nil {
		s.log.Warn("summary cache write failed", append(logger.Attrs(ctx), "filter", kind, "error", err)...)
	}
}

// Valuations returns per-record valuations for filter.
func (s *Service) Valuations(ctx context.Context, filter string) (view ValuationsView, err error) {
	defer s.observe(ctx, "valuations", time.Now(), &err)

	kind, err := portfolio.ParseFilterKind(filter)
	if err != nil {
		return ValuationsView{}, err
	}
	snap, err := s.latest(ctx)
	if err != nil {
		return ValuationsView{}, err
	}
	return ValuationsFor(snap, kind)
}

// Chart returns the allocation series for filter.
func (s *Service) Chart(ctx context.Context, filter string) (view ChartView, err error) {
	defer s.observe(ctx, "chart", time.Now(), &err)

	kind, err := portfolio.ParseFilterKind(filter)
	if err != nil {
		return ChartView{}, err
	}
	snap, err := s.latest(ctx)
	if err != nil {
		return ChartView{}, err
	}
	return ChartFor(snap, kind)
}

// Heatmap returns heatmap cells for filter. A ceiling <= 0 uses the
// configured default.
func (s *Service) Heatmap(ctx context.Context, filter string, ceiling float64) (view HeatmapView, err error) {
	defer s.observe(ctx, "heatmap", time.Now(), &err)

	kind, err := portfolio.ParseFilterKind(filter)
	if err != nil {
		return HeatmapView{}, err
	}
	if ceiling <= 0 {
		ceiling = s.ceiling
	}
	snap, err := s.latest(ctx)
	if err != nil {
		return HeatmapView{}, err
	}
	return HeatmapFor(snap, kind, ceiling)
}

// Pledge computes pledge or payback economics for a holding of the latest
// snapshot.
func (s *Service) Pledge(ctx context.Context, req PledgeRequest) (view PledgeView, err error) {
	defer s.observe(ctx, "pledge", time.Now(), &err)

	snap, err := s.latest(ctx)
	if err != nil {
		return PledgeView{}, err
	}
	return PledgeFor(snap, req, s.rates)
}

// Snapshots lists stored snapshot headers, newest first.
func (s *Service) Snapshots(ctx context.Context, limit int) ([]model.SnapshotInfo, error) {
	return s.store.ListSnapshots(ctx, limit)
}

// Ingest validates and stores snap, then refreshes the "all" summary in
// the cache, publishes it and runs the day-change alert check. Cache,
// publish and alert failures are logged but do not fail the ingest.
func (s *Service) Ingest(ctx context.Context, snap model.Snapshot) (res IngestResult, err error) {
	defer s.observe(ctx, "ingest", time.Now(), &err)

	for i, r := range snap.Records {
		if err := r.Validate(); err != nil {
			return IngestResult{}, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = s.now()
	}

	id, err := s.store.SaveSnapshot(ctx, snap)
	if err != nil {
		return IngestResult{}, fmt.Errorf("save snapshot: %w", err)
	}
	snap.ID = id

	view, err := SummaryFor(snap, portfolio.FilterAll, s.now())
	if err != nil {
		return IngestResult{}, err
	}
	res = IngestResult{Snapshot: snap.Info(), Summary: view}

	if s.metrics != nil {
		s.metrics.SnapshotsIngested.Inc()
		s.metrics.RecordsIngested.Add(float64(len(snap.Records)))
	}
	sum := view.Summary
	s.metrics.SetPortfolio(sum.TotalCurrentValue, sum.TotalInvestmentValue, sum.OverallPnL, sum.TotalDayChangePercent, sum.Count)

	attrs := append(logger.Attrs(ctx), "snapshot_id", id, "source", snap.Source, "records", len(snap.Records))
	s.log.Info("snapshot ingested", attrs...)

	s.refreshCache(ctx, view)
	s.publish(ctx, view)
	res.Alerted = s.checkAlert(ctx, snap, view)
	return res, nil
}

func (s *Service) refreshCache(ctx context.Context, view SummaryView) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gen++

	kinds := portfolio.FilterKinds()
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = string(k)
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("summary cache invalidate failed", append(logger.Attrs(ctx), "error", err)...)
		return
	}
	if err := s.cache.PutSummary(ctx, string(portfolio.FilterAll), view); err != nil {
		s.log.Warn("summary cache write failed", append(logger.Attrs(ctx), "error", err)...)
	}
}

func (s *Service) publish(ctx context.Context, view SummaryView) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		s.log.Error("marshal summary", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.log.Warn("summary publish failed", append(logger.Attrs(ctx), "error", err)...)
	}
}

func (s *Service) checkAlert(ctx context.Context, snap model.Snapshot, view SummaryView) bool {
	if s.notifier == nil {
		return false
	}
	level, ok := s.alerts.Evaluate(view.Summary)
	day := snap.TakenAt.UTC().Format("2006-01-02")
	if !ok || !s.gate.allow(day, level) {
		return false
	}

	alert := buildAlert(level, view, s.alerts.DayChangePct)
	if err := s.notifier.Send(ctx, alert); err != nil {
		s.log.Warn("alert delivery failed", append(logger.Attrs(ctx), "alert_id", alert.ID, "error", err)...)
		return false
	}
	s.gate.delivered(day, level)
	if s.metrics != nil {
		s.metrics.AlertsSent.WithLabelValues(string(level)).Inc()
	}
	return true
}

// observe records latency for op and, when *errp is set, counts the error
// by kind and logs it.
func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	s.metrics.ObserveCompute(op, start)
	if *errp == nil {
		return
	}
	kind := ErrorKind(*errp)
	s.metrics.CountError(kind)
	s.log.Debug("operation failed", append(logger.Attrs(ctx), "op", op, "kind", kind, "error", *errp)...)
}

// ErrorKind classifies err for metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, portfolio.ErrInvalidFilterKind):
		return "invalid_filter"
	case errors.Is(err, portfolio.ErrQuantityOutOfRange):
		return "quantity_out_of_range"
	case errors.Is(err, portfolio.ErrInvalidPledgeMode):
		return "invalid_pledge_mode"
	case errors.Is(err, portfolio.ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, model.ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, ErrNotPledgeable):
		return "not_pledgeable"
	case errors.Is(err, ErrNoSnapshot):
		return "no_snapshot"
	case errors.Is(err, ErrHoldingNotFound), errors.Is(err, sqlite.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
