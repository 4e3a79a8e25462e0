package unified

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"obrawatch/internal/config"
	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
	"obrawatch/internal/telemetry"
)

type AlertsFetcher interface {
	FetchAlerts(ctx context.Context) ([]model.RawRecord, error)
}

type WorksFetcher interface {
	GetWorks(ctx context.Context) ([]model.RawRecord, error)
}

// Result is one join cycle. Cached reports whether it came from the cache.
type Result struct {
	Projects  []model.UnifiedProject `json:"projects"`
	Orphaned  []model.OrphanedGroup  `json:"orphaned"`
	Alerts    []model.MappedAlert    `json:"alerts"`
	FetchedAt time.Time              `json:"fetched_at"`
	Cached    bool                   `json:"cached"`
}

// OrphanedAlerts counts alerts across every orphaned group.
func (r Result) OrphanedAlerts() int {
	n := 0
	for _, g := range r.Orphaned {
		n += len(g.Alerts)
	}
	return n
}

type Options struct {
	TTL     time.Duration
	Cache   Cache
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

type Service struct {
	alerts  AlertsFetcher
	works   WorksFetcher
	ttl     time.Duration
	cache   Cache
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu sync.Mutex
}

func NewService(alerts AlertsFetcher, works WorksFetcher, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = config.DefaultCacheTTL
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		alerts:  alerts,
		works:   works,
		ttl:     opts.TTL,
		cache:   opts.Cache,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Get returns the unified projects. A cached result younger than the TTL is
// returned without touching the sources unless forceRefresh is set. Both
// fetches must succeed; on error the cache is left as it was.
func (s *Service) Get(ctx context.Context, forceRefresh bool) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !forceRefresh {
		cached, ok, err := s.cache.Load(ctx)
		if err != nil && s.logger != nil {
			s.logger.Warn("unified cache load failed", "err", err)
		}
		if ok && s.now().Sub(cached.FetchedAt) < s.ttl {
			s.metrics.CacheLookup("hit")
			cached.Cached = true
			return cached, nil
		}
		s.metrics.CacheLookup("miss")
	} else {
		s.metrics.CacheLookup("forced")
	}

	rawAlerts, rawWorks, err := s.fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	alerts := normalize.MapAlerts(rawAlerts)
	projects, orphaned := Join(alerts, rawWorks, now)
	res := Result{
		Projects:  projects,
		Orphaned:  orphaned,
		Alerts:    alerts,
		FetchedAt: now,
	}
	s.report(res)

	if err := s.cache.Store(ctx, res); err != nil && s.logger != nil {
		s.logger.Warn("unified cache store failed", "err", err)
	}
	return res, nil
}

// Invalidate drops the cached result so the next Get refetches.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Clear(ctx)
}

func (s *Service) fetch(ctx context.Context) ([]model.RawRecord, []model.RawRecord, error) {
	var rawAlerts, rawWorks []model.RawRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawAlerts, err = s.alerts.FetchAlerts(gctx)
		if err != nil {
			return fmt.Errorf("fetch alerts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rawWorks, err = s.works.GetWorks(gctx)
		if err != nil {
			return fmt.Errorf("fetch works: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rawAlerts, rawWorks, nil
}

func (s *Service) report(res Result) {
	attention := 0
	for _, p := range res.Projects {
		if p.RequiresAttention {
			attention++
		}
	}
	orphanedAlerts := res.OrphanedAlerts()
	s.metrics.SetProjects(len(res.Projects), attention, orphanedAlerts)
	if s.logger == nil {
		return
	}
	for _, g := range res.Orphaned {
		s.logger.Warn("alerts reference unknown work", "work_id", g.WorkID, "count", len(g.Alerts))
	}
	s.logger.Info("unified data refreshed",
		"count", len(res.Projects),
		"alerts", len(res.Alerts),
		"orphaned", orphanedAlerts,
		"attention", attention,
	)
}

// Join groups alerts by work id and emits one project per distinct work id.
// Works carrying alerts come first, in order of their first alert, followed
// by alert-less works in works order. Alert groups whose work is missing are
// returned as orphaned instead of projects.
func Join(alerts []model.MappedAlert, works []model.RawRecord, now time.Time) ([]model.UnifiedProject, []model.OrphanedGroup) {
	groups := make(map[string][]model.MappedAlert)
	var order []string
	for _, a := range alerts {
		if _, ok := groups[a.WorkID]; !ok {
			order = append(order, a.WorkID)
		}
		groups[a.WorkID] = append(groups[a.WorkID], a)
	}

	// Works without an id cannot be joined; alerts without one stay orphaned.
	byID := make(map[string]model.RawRecord, len(works))
	for _, w := range works {
		id := normalize.WorkID(w)
		if id == "" {
			continue
		}
		if _, dup := byID[id]; !dup {
			byID[id] = w
		}
	}

	projects := make([]model.UnifiedProject, 0, len(byID))
	var orphaned []model.OrphanedGroup
	for _, id := range order {
		work, ok := byID[id]
		if !ok {
			orphaned = append(orphaned, model.OrphanedGroup{WorkID: id, Alerts: groups[id]})
			continue
		}
		projects = append(projects, CreateUnifiedProject(work, groups[id], now))
	}

	emitted := make(map[string]struct{}, len(byID))
	for _, w := range works {
		id := normalize.WorkID(w)
		if id == "" {
			continue
		}
		if _, ok := groups[id]; ok {
			continue
		}
		if _, ok := emitted[id]; ok {
			continue
		}
		emitted[id] = struct{}{}
		projects = append(projects, CreateUnifiedProject(w, nil, now))
	}
	return projects, orphaned
}
