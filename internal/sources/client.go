package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"obrawatch/internal/model"
	"obrawatch/internal/telemetry"
)

// ErrUpstreamStatus wraps every non-2xx answer from a source API.
var ErrUpstreamStatus = errors.New("upstream returned non-2xx status")

// ErrNotConfigured is returned when a source has no URL.
var ErrNotConfigured = errors.New("source url not configured")

// Page is the envelope the alert and history endpoints answer with.
type Page struct {
	Data       []model.RawRecord `json:"data"`
	Pagination model.Pagination  `json:"pagination"`
	Metadata   model.Metadata    `json:"metadata"`
}

type Client struct {
	http    *http.Client
	apiKey  string
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewClient(httpClient *http.Client, apiKey string, logger *slog.Logger, metrics *telemetry.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient, apiKey: apiKey, logger: logger, metrics: metrics, now: time.Now}
}

// getJSON performs a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	if rawURL == "" {
		return ErrNotConfigured
	}
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("GET %s -> %d: %s: %w", rawURL, resp.StatusCode, bytes.TrimSpace(body), ErrUpstreamStatus)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// getPage accepts either a {data, pagination, metadata} envelope or a bare array.
func (c *Client) getPage(ctx context.Context, rawURL string, query url.Values) (Page, error) {
	var body json.RawMessage
	if err := c.getJSON(ctx, rawURL, query, &body); err != nil {
		return Page{}, err
	}
	return decodePage(body)
}

func decodePage(body json.RawMessage) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Page{}, errors.New("empty body")
	}
	var page Page
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page.Data); err != nil {
			return Page{}, fmt.Errorf("decode array: %w", err)
		}
	} else {
		var env struct {
			Page
			Items []model.RawRecord `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Page{}, fmt.Errorf("decode envelope: %w", err)
		}
		page = env.Page
		if page.Data == nil {
			page.Data = env.Items
		}
	}
	if page.Data == nil {
		page.Data = []model.RawRecord{}
	}
	if page.Pagination.Total == 0 {
		page.Pagination.Total = len(page.Data)
	}
	if page.Pagination.Page == 0 {
		page.Pagination.Page = 1
	}
	return page, nil
}

func (c *Client) observe(source, outcome string, started time.Time) {
	c.metrics.ObserveSource(source, outcome, c.now().Sub(started))
}
