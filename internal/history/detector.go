package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"obrawatch/internal/model"
	"obrawatch/internal/sources"
	"obrawatch/internal/telemetry"
)

type Fetcher interface {
	GetHistory(ctx context.Context) (sources.Page, error)
}

type Changes struct {
	Budget    []model.ChangeRecord `json:"budget"`
	Dates     []model.ChangeRecord `json:"dates"`
	Records   int                  `json:"records"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// All returns budget changes followed by date changes.
func (c Changes) All() []model.ChangeRecord {
	out := make([]model.ChangeRecord, 0, len(c.Budget)+len(c.Dates))
	out = append(out, c.Budget...)
	return append(out, c.Dates...)
}

type Detector struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewDetector(fetcher Fetcher, logger *slog.Logger, metrics *telemetry.Metrics) *Detector {
	return &Detector{fetcher: fetcher, logger: logger, metrics: metrics, now: time.Now}
}

// Detect fetches the change log and runs both detectors with opts.
func (d *Detector) Detect(ctx context.Context, opts Options) (Changes, error) {
	page, err := d.fetcher.GetHistory(ctx)
	if err != nil {
		return Changes{}, fmt.Errorf("fetch history: %w", err)
	}
	records := FromRaw(page.Data)
	c := Changes{
		Budget:    BudgetChanges(records, opts),
		Dates:     DateChanges(records, opts),
		Records:   len(records),
		FetchedAt: d.now(),
	}
	d.metrics.SetChanges(string(model.ChangeBudget), len(c.Budget))
	d.metrics.SetChanges(string(model.ChangeDate), len(c.Dates))
	if d.logger != nil {
		d.logger.Info("history changes detected", "count", c.Records, "budget", len(c.Budget), "dates", len(c.Dates))
		for _, r := range c.All() {
			d.logger.Debug("significant change", "work_id", r.WorkID, "summary", Summary(r))
		}
	}
	return c, nil
}
