package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"obrawatch/internal/config"
	"obrawatch/internal/history"
	"obrawatch/internal/model"
	"obrawatch/internal/publish"
	"obrawatch/internal/severity"
	"obrawatch/internal/storage"
	"obrawatch/internal/telemetry"
	"obrawatch/internal/unified"
)

// ErrCooldown is returned when a forced refresh arrives too soon after the last one.
var ErrCooldown = errors.New("refresh requested too soon")

const forcedRefreshKey = "forced_refresh"

type Deps struct {
	Unified   *unified.Service
	Detector  *history.Detector
	Store     storage.Store
	Publisher *publish.Publisher
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

// State is the outcome of the last completed refresh.
type State struct {
	Result      unified.Result  `json:"-"`
	Changes     history.Changes `json:"-"`
	RefreshedAt time.Time       `json:"refreshed_at"`
	Projects    int             `json:"projects"`
	Attention   int             `json:"attention"`
	Orphaned    int             `json:"orphaned_alerts"`
	Published   int             `json:"published"`
	SnapshotID  int64           `json:"snapshot_id,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type Engine struct {
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	unified    *unified.Service
	detector   *history.Detector
	store      storage.Store
	publisher  *publish.Publisher
	cfg        atomic.Value
	thresholds atomic.Value
	state      atomic.Value
	cooldown   *Cooldown
	started    time.Time
	now        func() time.Time

	// refreshMu serializes refresh cycles; attention is only touched under it.
	refreshMu sync.Mutex
	attention map[string]struct{}
}

func NewEngine(cfg *config.Config, deps Deps) *Engine {
	e := &Engine{
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		unified:   deps.Unified,
		detector:  deps.Detector,
		store:     deps.Store,
		publisher: deps.Publisher,
		started:   time.Now().UTC(),
		now:       time.Now,
		attention: map[string]struct{}{},
	}
	e.cooldown = NewCooldown(func() time.Time { return e.now() })
	e.cfg.Store(cfg)
	e.thresholds.Store(cfg.Severity)
	return e
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// UpdateConfig swaps the live config. Runtime thresholds are replaced only
// when the severity section itself changed.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	prev := e.config()
	e.cfg.Store(cfg)
	if !sameThresholds(prev.Severity, cfg.Severity) {
		e.thresholds.Store(cfg.Severity)
	}
}

func (e *Engine) Thresholds() model.SeverityThresholds {
	if v := e.thresholds.Load(); v != nil {
		return v.(model.SeverityThresholds)
	}
	return config.DefaultThresholds()
}

// SetThresholds changes the classification used by the API. It lives in
// memory only; the config file keeps the defaults.
func (e *Engine) SetThresholds(th model.SeverityThresholds) {
	e.thresholds.Store(th)
}

// State returns the last refresh outcome; ok is false before the first
// successful refresh.
func (e *Engine) State() (State, bool) {
	if v := e.state.Load(); v != nil {
		st := v.(State)
		return st, !st.RefreshedAt.IsZero()
	}
	return State{}, false
}

func (e *Engine) Started() time.Time {
	return e.started
}

func (e *Engine) Feed() *publish.Feed {
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Feed()
}

// Init seeds the attention set from the last stored snapshot so a restart
// does not republish every flagged work.
func (e *Engine) Init(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	ids, err := e.store.LatestAttention(ctx)
	if err != nil {
		return fmt.Errorf("load attention: %w", err)
	}
	e.refreshMu.Lock()
	e.attention = ids
	e.refreshMu.Unlock()
	return nil
}

// Start refreshes immediately and then every refresh interval until ctx ends.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		e.runRefresh(ctx, false)
		interval := e.config().Unified.RefreshInterval
		if interval <= 0 {
			interval = config.DefaultCacheTTL
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.runRefresh(ctx, false)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) runRefresh(ctx context.Context, force bool) {
	if _, err := e.Refresh(ctx, force); err != nil && e.logger != nil && ctx.Err() == nil {
		e.logger.Error("refresh failed", "err", err)
	}
}

// ForceRefresh bypasses the unified cache, at most once per refresh cooldown.
func (e *Engine) ForceRefresh(ctx context.Context) (State, error) {
	cooldown := e.config().Unified.RefreshCooldown
	if !e.cooldown.AllowKey(forcedRefreshKey, cooldown) {
		return State{}, fmt.Errorf("%w: retry in %s", ErrCooldown, e.cooldown.Remaining(forcedRefreshKey, cooldown).Round(time.Second))
	}
	return e.Refresh(ctx, true)
}

// Refresh runs one cycle: join, change detection, snapshot, publish.
// Only the join is fatal; later stages log and carry on.
func (e *Engine) Refresh(ctx context.Context, force bool) (State, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	started := e.now()
	defer func() { e.metrics.ObserveRefresh(e.now().Sub(started)) }()

	res, err := e.unified.Get(ctx, force)
	if err != nil {
		st, _ := e.State()
		st.Error = err.Error()
		e.state.Store(st)
		return State{}, fmt.Errorf("unified data: %w", err)
	}

	st := State{
		Result:      res,
		RefreshedAt: e.now().UTC(),
		Projects:    len(res.Projects),
		Orphaned:    res.OrphanedAlerts(),
	}
	attention := make(map[string]struct{})
	for _, p := range res.Projects {
		if p.RequiresAttention {
			attention[p.WorkID] = struct{}{}
		}
	}
	st.Attention = len(attention)

	cfg := e.config()
	if e.detector != nil {
		changes, err := e.detector.Detect(ctx, history.OptionsFromConfig(cfg))
		if err != nil {
			e.warn("change detection failed", err)
		} else {
			st.Changes = changes
		}
	}

	if e.store != nil && !res.Cached {
		id, err := e.store.SaveSnapshot(ctx, storage.Snapshot{
			TakenAt:        res.FetchedAt,
			Projects:       res.Projects,
			OrphanedAlerts: st.Orphaned,
		})
		if err != nil {
			e.warn("save snapshot failed", err)
		}
		st.SnapshotID = id
		if _, err := e.store.SaveChanges(ctx, st.Changes.All()); err != nil {
			e.warn("save changes failed", err)
		}
	}

	if e.publisher != nil {
		now := e.now().UTC()
		events := publish.AttentionEvents(e.attention, res.Projects, now)
		events = append(events, publish.ChangeEvents(st.Changes.All(), now)...)
		n, err := e.publisher.Publish(ctx, events)
		if err != nil {
			e.warn("publish failed", err)
		}
		st.Published = n
	}

	e.attention = attention
	e.state.Store(st)
	if e.logger != nil {
		e.logger.Info("refresh complete",
			"count", st.Projects,
			"attention", st.Attention,
			"orphaned", st.Orphaned,
			"published", st.Published,
			"cached", res.Cached,
		)
	}
	return st, nil
}

// Projects serves the unified data through the cache.
func (e *Engine) Projects(ctx context.Context) (unified.Result, error) {
	return e.unified.Get(ctx, false)
}

// Changes returns the changes found by the last refresh, detecting them on
// demand when no refresh has run yet.
func (e *Engine) Changes(ctx context.Context) (history.Changes, error) {
	if st, ok := e.State(); ok && !st.Changes.FetchedAt.IsZero() {
		return st.Changes, nil
	}
	if e.detector == nil {
		return history.Changes{}, nil
	}
	return e.detector.Detect(ctx, history.OptionsFromConfig(e.config()))
}

// Distribution classifies alerts with the live thresholds.
func (e *Engine) Distribution(alerts []model.MappedAlert) severity.Distribution {
	return severity.AnalyzeDistribution(alerts, e.Thresholds())
}

// Reset drops cached data, published history and the attention baseline.
func (e *Engine) Reset(ctx context.Context) error {
	e.refreshMu.Lock()
	e.attention = map[string]struct{}{}
	e.state.Store(State{})
	e.refreshMu.Unlock()
	e.cooldown.Reset()
	if e.publisher != nil {
		e.publisher.Reset()
	}
	return e.unified.Invalidate(ctx)
}

func (e *Engine) warn(msg string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, "err", err)
	}
}

func sameThresholds(a, b model.SeverityThresholds) bool {
	return slices.Equal(a.Critical.Gravedad, b.Critical.Gravedad) &&
		slices.Equal(a.Critical.RiskImpact, b.Critical.RiskImpact) &&
		slices.Equal(a.Warning.Gravedad, b.Warning.Gravedad) &&
		slices.Equal(a.Warning.RiskImpact, b.Warning.RiskImpact)
}
