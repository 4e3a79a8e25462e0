package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"obrawatch/internal/model"
	"obrawatch/internal/normalize"
)

const maxAlertPages = 200

// AlertQuery mirrors the filters accepted by the alerts endpoint.
type AlertQuery struct {
	Page             int
	Limit            int
	Department       string
	District         string
	StrategicProject string
	Impact           string
	Severity         string
	WorkState        string
	Search           string
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(key, val)
		}
	}
	set("dependencia", q.Department)
	set("comuna", q.District)
	set("proyecto_estrategico", q.StrategicProject)
	set("impacto", q.Impact)
	set("gravedad", q.Severity)
	set("estado_obra", q.WorkState)
	set("search", q.Search)
	return v
}

type AlertsClient struct {
	client   *Client
	url      string
	pageSize int
	fallback bool
	sample   []model.RawRecord
}

func NewAlertsClient(client *Client, rawURL string, pageSize int, useFallback bool) *AlertsClient {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &AlertsClient{
		client:   client,
		url:      rawURL,
		pageSize: pageSize,
		fallback: useFallback,
		sample:   SampleAlerts(),
	}
}

// GetAlerts fetches one page. When the endpoint fails and fallback is enabled
// the built-in sample is filtered and paginated instead; no error surfaces.
func (c *AlertsClient) GetAlerts(ctx context.Context, q AlertQuery) (Page, error) {
	started := c.client.now()
	page, err := c.client.getPage(ctx, c.url, q.values())
	if err == nil {
		c.client.observe("alerts", "ok", started)
		page.Metadata.Source = "api"
		page.Metadata.FetchedAt = c.client.now().UTC()
		return page, nil
	}
	if !c.fallback {
		c.client.observe("alerts", "error", started)
		return Page{}, err
	}
	c.client.observe("alerts", "fallback", started)
	if c.client.logger != nil {
		c.client.logger.Warn("alerts endpoint unavailable, serving sample data", "err", err, "fallback", true)
	}
	return c.samplePage(q), nil
}

// FetchAlerts walks every page of the endpoint.
func (c *AlertsClient) FetchAlerts(ctx context.Context) ([]model.RawRecord, error) {
	first, err := c.GetAlerts(ctx, AlertQuery{Page: 1, Limit: c.pageSize})
	if err != nil {
		return nil, err
	}
	out := append([]model.RawRecord{}, first.Data...)
	if first.Metadata.Source != "api" {
		return out, nil
	}
	for p := 2; p <= first.Pagination.TotalPages && p <= maxAlertPages; p++ {
		next, err := c.GetAlerts(ctx, AlertQuery{Page: p, Limit: c.pageSize})
		if err != nil {
			return nil, err
		}
		if next.Metadata.Source != "api" {
			// Upstream dropped mid-walk; the whole sample replaces the partial pages.
			return c.samplePage(AlertQuery{}).Data, nil
		}
		out = append(out, next.Data...)
	}
	return out, nil
}

func (c *AlertsClient) samplePage(q AlertQuery) Page {
	matched := make([]model.RawRecord, 0, len(c.sample))
	for _, raw := range c.sample {
		if matchesQuery(normalize.MapAlert(raw), q) {
			matched = append(matched, raw)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = len(matched)
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	total := len(matched)
	totalPages := 1
	if limit > 0 && total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return Page{
		Data:       matched[start:end],
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages},
		Metadata:   model.Metadata{Source: "fallback", FetchedAt: c.client.now().UTC()},
	}
}

func matchesQuery(a model.MappedAlert, q AlertQuery) bool {
	if !equalFold(q.Department, a.Department) ||
		!equalFold(q.District, a.District) ||
		!equalFold(q.StrategicProject, a.StrategicProject) ||
		!equalFold(q.Impact, a.RiskImpact) ||
		!equalFold(q.WorkState, a.WorkState) {
		return false
	}
	if q.Severity != "" && normalize.Gravedad(q.Severity) != normalize.GravedadOf(a.Severity) {
		return false
	}
	if q.Search != "" {
		if !normalize.ContainsFold(a.WorkName, q.Search) &&
			!normalize.ContainsFold(a.Description, q.Search) &&
			!normalize.ContainsFold(a.Department, q.Search) &&
			!normalize.ContainsFold(a.WorkID, q.Search) {
			return false
		}
	}
	return true
}

func equalFold(filter, value string) bool {
	if strings.TrimSpace(filter) == "" {
		return true
	}
	return normalize.Fold(filter) == normalize.Fold(value)
}
