package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"obrawatch/internal/config"
	"obrawatch/internal/engine"
	"obrawatch/internal/filter"
	"obrawatch/internal/history"
	"obrawatch/internal/model"
	"obrawatch/internal/publish"
	"obrawatch/internal/severity"
	"obrawatch/internal/telemetry"
	"obrawatch/internal/unified"
)

// Backend is what the API needs from the engine.
type Backend interface {
	Projects(ctx context.Context) (unified.Result, error)
	Changes(ctx context.Context) (history.Changes, error)
	Thresholds() model.SeverityThresholds
	SetThresholds(th model.SeverityThresholds)
	Distribution(alerts []model.MappedAlert) severity.Distribution
	ForceRefresh(ctx context.Context) (engine.State, error)
	Reset(ctx context.Context) error
	State() (engine.State, bool)
	Started() time.Time
	Feed() *publish.Feed
}

type Server struct {
	cfg     *config.Manager
	backend Backend
	metrics *telemetry.Metrics
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status      string        `json:"status"`
	Time        string        `json:"time"`
	Version     string        `json:"version"`
	ConfigPath  string        `json:"config_path"`
	Uptime      string        `json:"uptime"`
	Sources     sourcesStatus `json:"sources"`
	Cache       cacheStatus   `json:"cache"`
	Storage     bool          `json:"storage"`
	Publish     bool          `json:"publish"`
	LastRefresh *engine.State `json:"last_refresh,omitempty"`
}

type sourcesStatus struct {
	Alerts   bool `json:"alerts"`
	Works    bool `json:"works"`
	History  bool `json:"history"`
	Fallback bool `json:"fallback"`
}

type cacheStatus struct {
	Backend string `json:"backend"`
	TTL     string `json:"ttl"`
}

func NewServer(cfg *config.Manager, backend Backend, metrics *telemetry.Metrics, logger *slog.Logger, version string) *Server {
	return &Server{cfg: cfg, backend: backend, metrics: metrics, logger: logger, version: version}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/{id}", s.handleProject)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/severity/distribution", s.handleDistribution)
	mux.HandleFunc("/groups/department", s.handleGroups(filter.GroupByDepartment))
	mux.HandleFunc("/groups/strategic", s.handleGroups(filter.GroupByStrategicProject))
	mux.HandleFunc("/changes", s.handleChanges)
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/config/thresholds", s.handleThresholds)
	mux.HandleFunc("/admin/refresh", s.handleRefresh)
	mux.HandleFunc("/admin/reset", s.handleReset)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func Start(ctx context.Context, cfg *config.Manager, backend Backend, metrics *telemetry.Metrics, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, backend, metrics, logger, version)
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Uptime:     time.Since(s.backend.Started()).Round(time.Second).String(),
		Sources: sourcesStatus{
			Alerts:   cfg.Sources.AlertsURL != "",
			Works:    cfg.Sources.WorksURL != "",
			History:  cfg.Sources.HistoryURL != "",
			Fallback: cfg.Sources.UseFallback,
		},
		Cache:   cacheStatus{Backend: cfg.Unified.CacheBackend, TTL: cfg.Unified.CacheTTL.String()},
		Storage: cfg.Storage.Enabled,
		Publish: cfg.Publish.Enabled,
	}
	if st, ok := s.backend.State(); ok {
		resp.LastRefresh = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f, err := projectFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	projects := filter.Projects(res.Projects, f)
	writeJSON(w, http.StatusOK, map[string]any{
		"projects":        projects,
		"count":           len(projects),
		"total":           len(res.Projects),
		"orphaned_alerts": res.OrphanedAlerts(),
		"fetched_at":      res.FetchedAt,
		"cached":          res.Cached,
	})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	for _, p := range res.Projects {
		if p.WorkID == id {
			alerts := make([]model.MappedAlert, 0, p.TotalAlerts)
			for _, a := range res.Alerts {
				if a.WorkID == id {
					alerts = append(alerts, a)
				}
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"project": p,
				"alerts":  alerts,
			})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	f := filter.AlertFilters{
		Search:            strings.TrimSpace(q.Get("search")),
		Departments:       list(q, "department"),
		Severities:        list(q, "severity"),
		Impacts:           list(q, "impact"),
		Districts:         list(q, "district"),
		StrategicProjects: list(q, "strategic_project"),
		WorkID:            strings.TrimSpace(q.Get("work_id")),
	}
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	alerts := filter.Alerts(res.Alerts, f)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"stats":  filter.Stats(res.Alerts, f),
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distribution": s.backend.Distribution(res.Alerts),
		"thresholds":   s.backend.Thresholds(),
	})
}

func (s *Server) handleGroups(group func([]model.UnifiedProject) []filter.GroupStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f, err := projectFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, ok := s.result(w, r)
		if !ok {
			return
		}
		groups := group(filter.Projects(res.Projects, f))
		writeJSON(w, http.StatusOK, map[string]any{
			"groups": groups,
			"count":  len(groups),
		})
	}
}

type changeView struct {
	model.ChangeRecord
	Summary string `json:"summary"`
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	changes, err := s.backend.Changes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	view := func(records []model.ChangeRecord) []changeView {
		out := make([]changeView, 0, len(records))
		for _, rec := range records {
			out = append(out, changeView{ChangeRecord: rec, Summary: history.Summary(rec)})
		}
		return out
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"budget":     view(changes.Budget),
		"dates":      view(changes.Dates),
		"records":    changes.Records,
		"fetched_at": changes.FetchedAt,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	feed := s.backend.Feed()
	if feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []publish.Event{}, "count": 0})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var events []publish.Event
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events = feed.Since(ts)
	} else {
		events = feed.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"thresholds": s.backend.Thresholds(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var th model.SeverityThresholds
		if err := json.Unmarshal(body, &th); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		th = sanitizeThresholds(th)
		if len(th.Critical.Gravedad)+len(th.Critical.RiskImpact)+len(th.Warning.Gravedad)+len(th.Warning.RiskImpact) == 0 {
			writeError(w, http.StatusBadRequest, errors.New("thresholds are empty"))
			return
		}
		if s.cfg != nil && s.cfg.Path() != "" {
			next := *s.cfg.Get()
			next.Severity = th
			if err := s.cfg.Update(&next); err != nil {
				writeError(w, http.StatusInternalServerError, fmt.Errorf("persist thresholds: %w", err))
				return
			}
		}
		s.backend.SetThresholds(th)
		if s.logger != nil {
			s.logger.Info("severity thresholds updated", "persisted", s.cfg != nil && s.cfg.Path() != "")
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "thresholds": th})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, err := s.backend.ForceRefresh(r.Context())
	if errors.Is(err, engine.ErrCooldown) {
		writeError(w, http.StatusTooManyRequests, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "refresh": st})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.backend.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) (unified.Result, bool) {
	res, err := s.backend.Projects(r.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("unified data unavailable", "err", err)
		}
		writeError(w, http.StatusBadGateway, err)
		return unified.Result{}, false
	}
	return res, true
}

func projectFilters(r *http.Request) (filter.ProjectFilters, error) {
	q := r.URL.Query()
	f := filter.ProjectFilters{
		Severities:        list(q, "severity"),
		Phases:            list(q, "phase"),
		States:            list(q, "state"),
		Departments:       list(q, "department"),
		Districts:         list(q, "district"),
		StrategicProjects: list(q, "strategic_project"),
		InterventionTypes: list(q, "intervention_type"),
		Search:            strings.TrimSpace(q.Get("search")),
	}
	floats := map[string]**float64{
		"budget_min":   &f.BudgetMin,
		"budget_max":   &f.BudgetMax,
		"progress_min": &f.ProgressMin,
		"progress_max": &f.ProgressMax,
	}
	for key, dst := range floats {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("invalid " + key)
		}
		*dst = &n
	}
	bools := map[string]**bool{
		"has_alerts":          &f.HasAlerts,
		"only_with_alerts":    &f.OnlyWithAlerts,
		"only_without_alerts": &f.OnlyWithoutAlerts,
		"delivered":           &f.Delivered,
		"overdue":             &f.Overdue,
		"requires_attention":  &f.RequiresAttention,
	}
	for key, dst := range bools {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("invalid " + key)
		}
		*dst = &b
	}
	return f, nil
}

// list accepts both repeated parameters and comma separated values.
func list(q map[string][]string, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func sanitizeThresholds(th model.SeverityThresholds) model.SeverityThresholds {
	return model.SeverityThresholds{
		Critical: sanitizeBucket(th.Critical),
		Warning:  sanitizeBucket(th.Warning),
	}
}

func sanitizeBucket(b model.ThresholdBucket) model.ThresholdBucket {
	return model.ThresholdBucket{
		Gravedad:   sanitizeList(b.Gravedad),
		RiskImpact: sanitizeList(b.RiskImpact),
	}
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
