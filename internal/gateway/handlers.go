package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/model"
)

const maxBodyBytes = 4 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
}

// API holds the handler dependencies. Health may be nil.
type API struct {
	Service *dashboard.Service
	Hub     *Hub
	Health  *metrics.HealthStatus
	Logger  *slog.Logger

	started time.Time
}

// RegisterRoutes registers all HTTP routes on mux.
func RegisterRoutes(mux *http.ServeMux, api *API) {
	api.started = time.Now()
	api.Logger = logger.Component(api.Logger, "gateway")

	mux.HandleFunc("/ws", api.handleWS)
	mux.HandleFunc("/api/v1/health", api.rest(http.MethodGet, api.handleHealth))
	mux.HandleFunc("/api/v1/summary", api.rest(http.MethodGet, api.handleSummary))
	mux.HandleFunc("/api/v1/valuations", api.rest(http.MethodGet, api.handleValuations))
	mux.HandleFunc("/api/v1/chart", api.rest(http.MethodGet, api.handleChart))
	mux.HandleFunc("/api/v1/heatmap", api.rest(http.MethodGet, api.handleHeatmap))
	mux.HandleFunc("/api/v1/pledge", api.rest(http.MethodPost, api.handlePledge))
	mux.HandleFunc("/api/v1/snapshots", api.handleSnapshots)
	mux.HandleFunc("/api/v1/missed", api.rest(http.MethodGet, api.handleMissed))
}

// WithRequestID tags every request with an ID, taken from X-Request-ID when
// the caller sends one, and echoes it back.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// rest wraps a JSON endpoint with CORS, preflight and method checks.
func (a *API) rest(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case method:
			h(w, r)
		default:
			w.Header().Set("Allow", method+", OPTIONS")
			a.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Kind: "method"})
		}
	}
}

func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn("ws upgrade failed", append(logger.Attrs(r.Context()), "error", err)...)
		return
	}
	lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
	a.Hub.HandleWSRequest(conn, lastSeq)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"ws_clients": a.Hub.ClientCount(),
		"seq":        a.Hub.Seq(),
		"uptime_sec": int64(time.Since(a.started).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if a.Health != nil {
		rep, c := a.Health.Report()
		body["status"] = rep.Status
		body["dependencies"] = rep
		code = c
	}
	a.writeJSON(w, code, body)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.Summary(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, NewSummaryResponse(view))
}

func (a *API) handleValuations(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.Valuations(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, NewValuationsResponse(view))
}

func (a *API) handleChart(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.Chart(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	var ceiling float64
	if s := r.URL.Query().Get("ceiling"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			a.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ceiling must be a number", Kind: "bad_request"})
			return
		}
		ceiling = v
	}
	view, err := a.Service.Heatmap(r.Context(), r.URL.Query().Get("filter"), ceiling)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handlePledge(w http.ResponseWriter, r *http.Request) {
	var req dashboard.PledgeRequest
	if !a.decode(w, r, &req) {
		return
	}
	view, err := a.Service.Pledge(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, NewPledgeResponse(view))
}

// handleSnapshots lists snapshot headers on GET and ingests on POST.
func (a *API) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}
		infos, err := a.Service.Snapshots(r.Context(), limit)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if infos == nil {
			infos = []model.SnapshotInfo{}
		}
		a.writeJSON(w, http.StatusOK, infos)
	case http.MethodPost:
		var req IngestRequest
		if !a.decode(w, r, &req) {
			return
		}
		if req.Records == nil {
			req.Records = []model.Record{}
		}
		res, err := a.Service.Ingest(r.Context(), model.Snapshot{Source: req.Source, Records: req.Records})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if a.Health != nil {
			a.Health.SetLastSnapshotAt(res.Snapshot.TakenAt)
		}
		a.writeJSON(w, http.StatusCreated, IngestResponse{
			Snapshot: res.Snapshot,
			Summary:  NewSummaryResponse(res.Summary),
			Alerted:  res.Alerted,
		})
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		a.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Kind: "method"})
	}
}

// handleMissed returns buffered envelopes with from <= seq <= to. A missing
// "to" means up to the latest.
func (a *API) handleMissed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil || from < 1 {
		a.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "from must be a positive integer", Kind: "bad_request"})
		return
	}
	seq := a.Hub.Seq()
	to := seq
	if s := q.Get("to"); s != "" {
		if to, err = strconv.ParseInt(s, 10, 64); err != nil || to < from {
			a.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "to must be an integer >= from", Kind: "bad_request"})
			return
		}
	}
	a.writeJSON(w, http.StatusOK, MissedResponse{Seq: seq, Envelopes: a.Hub.Missed(from, to)})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error(), Kind: "bad_request"})
		return false
	}
	return true
}

// StatusFor maps a dashboard error kind to an HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case "invalid_filter", "quantity_out_of_range", "invalid_pledge_mode",
		"invalid_rate", "invalid_record", "not_pledgeable":
		return http.StatusBadRequest
	case "no_snapshot", "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := dashboard.ErrorKind(err)
	code := StatusFor(kind)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		a.Logger.Error("request failed", append(logger.Attrs(r.Context()), "path", r.URL.Path, "error", err)...)
		msg = "internal error"
	}
	a.writeJSON(w, code, ErrorResponse{Error: msg, Kind: kind})
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Debug("write response", "error", err)
	}
}
