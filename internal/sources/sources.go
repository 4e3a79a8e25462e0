package sources

import (
	"log/slog"
	"net/http"

	"obrawatch/internal/config"
	"obrawatch/internal/telemetry"
)

// Set bundles the three accessors built from one sources config.
type Set struct {
	Alerts  *AlertsClient
	Works   *WorksClient
	History *HistoryClient
}

func New(cfg config.SourcesConfig, logger *slog.Logger, metrics *telemetry.Metrics) Set {
	client := NewClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIKey, logger, metrics)
	return Set{
		Alerts:  NewAlertsClient(client, cfg.AlertsURL, cfg.PageSize, cfg.UseFallback),
		Works:   NewWorksClient(client, cfg.WorksURL),
		History: NewHistoryClient(client, cfg.HistoryURL, cfg.PageSize),
	}
}
