package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the portfolio engine.
//
// The helper methods are nil-safe so components built without metrics
// (tests, the report CLI) need no stub.
type Metrics struct {
	// Engine computations, labelled by operation (summary, valuations,
	// chart, heatmap, pledge, ingest)
	ComputeDur    *prometheus.HistogramVec
	ComputeErrors *prometheus.CounterVec // labels: kind

	// Ingest
	SnapshotsIngested prometheus.Counter
	RecordsIngested   prometheus.Counter
	SQLiteCommitDur   prometheus.Histogram

	// Latest "all" summary
	PortfolioValue          prometheus.Gauge
	PortfolioInvested       prometheus.Gauge
	PortfolioPnL            prometheus.Gauge
	PortfolioDayChangePct   prometheus.Gauge
	PortfolioRecordsTracked prometheus.Gauge

	// Summary cache
	CacheLookups *prometheus.CounterVec // labels: result=hit|miss|error

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	WSClients prometheus.Gauge

	// Alerts
	AlertsSent *prometheus.CounterVec // labels: severity

	// Broker sync
	BrokerSyncs   *prometheus.CounterVec // labels: result=ok|error|skipped
	BrokerSyncDur prometheus.Histogram
	MarketState   prometheus.Gauge // markethours.State: 0 closed, 1 pre-open, 2 open, 3 post-close
}

// NewMetrics registers all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New registers and returns all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolio_compute_duration_seconds",
			Help:    "Engine computation latency by operation",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"op"}),
		ComputeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_compute_errors_total",
			Help: "Engine errors by kind",
		}, []string{"kind"}),

		SnapshotsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_snapshots_ingested_total",
			Help: "Snapshots accepted by Ingest",
		}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_records_ingested_total",
			Help: "Records accepted across all ingested snapshots",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_sqlite_commit_duration_seconds",
			Help:    "SQLite snapshot commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_current_value",
			Help: "Total current value of the latest snapshot",
		}),
		PortfolioInvested: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_invested_value",
			Help: "Total investment value of the latest snapshot",
		}),
		PortfolioPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_pnl",
			Help: "Overall P&L of the latest snapshot",
		}),
		PortfolioDayChangePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_day_change_pct",
			Help: "Total day change percent of the latest snapshot",
		}),
		PortfolioRecordsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_records",
			Help: "Number of records in the latest snapshot",
		}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_summary_cache_lookups_total",
			Help: "Summary cache lookups by result",
		}, []string{"result"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_alerts_sent_total",
			Help: "Day-change alerts sent by severity",
		}, []string{"severity"}),

		BrokerSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_broker_syncs_total",
			Help: "Broker sync runs by result",
		}, []string{"result"}),
		BrokerSyncDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_broker_sync_duration_seconds",
			Help:    "Broker fetch and ingest latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_market_state",
			Help: "NSE session state (0=closed, 1=pre-open, 2=open, 3=post-close)",
		}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.ComputeErrors,
		m.SnapshotsIngested,
		m.RecordsIngested,
		m.SQLiteCommitDur,
		m.PortfolioValue,
		m.PortfolioInvested,
		m.PortfolioPnL,
		m.PortfolioDayChangePct,
		m.PortfolioRecordsTracked,
		m.CacheLookups,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.AlertsSent,
		m.BrokerSyncs,
		m.BrokerSyncDur,
		m.MarketState,
	)

	return m
}

// ObserveCompute records the latency of op since start.
func (m *Metrics) ObserveCompute(op string, start time.Time) {
	if m == nil {
		return
	}
	m.ComputeDur.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CountError increments the error counter for kind.
func (m *Metrics) CountError(kind string) {
	if m == nil {
		return
	}
	m.ComputeErrors.WithLabelValues(kind).Inc()
}

// CountCache records a summary cache lookup result.
func (m *Metrics) CountCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetPortfolio publishes the headline numbers of the latest summary.
func (m *Metrics) SetPortfolio(current, invested, pnl, dayChangePct float64, records int) {
	if m == nil {
		return
	}
	m.PortfolioValue.Set(current)
	m.PortfolioInvested.Set(invested)
	m.PortfolioPnL.Set(pnl)
	m.PortfolioDayChangePct.Set(dayChangePct)
	m.PortfolioRecordsTracked.Set(float64(records))
}

// ObserveBrokerSync counts a sync run by result; only completed fetches
// ("ok", "error") record a duration.
func (m *Metrics) ObserveBrokerSync(result string, start time.Time) {
	if m == nil {
		return
	}
	m.BrokerSyncs.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.BrokerSyncDur.Observe(time.Since(start).Seconds())
	}
}

// SetMarketState publishes the current session state.
func (m *Metrics) SetMarketState(state int) {
	if m == nil {
		return
	}
	m.MarketState.Set(float64(state))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastSnapshotAt time.Time `json:"last_snapshot_at"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		RedisEnabled: redisEnabled,
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSnapshotAt(t time.Time) {
	h.mu.Lock()
	h.LastSnapshotAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the JSON body served by ServeHTTP.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastSnapshotAt  string  `json:"last_snapshot_at,omitempty"`
	SnapshotAge     string  `json:"snapshot_age,omitempty"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Report returns the current status. SQLite is required; Redis only counts
// when enabled, and losing it degrades rather than fails the service.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.RedisEnabled && !h.RedisConnected:
		overallStatus = "degraded"
	}

	rep := Report{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastSnapshotAt.IsZero() {
		rep.LastSnapshotAt = h.LastSnapshotAt.Format(time.RFC3339)
		rep.SnapshotAge = time.Since(h.LastSnapshotAt).Round(time.Second).String()
	}
	return rep, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep, httpCode := h.Report()

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(rep)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
