package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"obrawatch/internal/model"
)

type HistoryClient struct {
	client   *Client
	url      string
	pageSize int
}

func NewHistoryClient(client *Client, rawURL string, pageSize int) *HistoryClient {
	return &HistoryClient{client: client, url: rawURL, pageSize: pageSize}
}

const maxHistoryPages = 200

// GetHistory returns every change-history record, walking the pages the
// endpoint reports. Any failure is logged and yields an empty page.
func (c *HistoryClient) GetHistory(ctx context.Context) (Page, error) {
	started := c.client.now()
	first, err := c.client.getPage(ctx, c.url, c.query(1))
	if err != nil {
		return c.empty(started, err), nil
	}
	records := append([]model.RawRecord{}, first.Data...)
	for p := 2; p <= first.Pagination.TotalPages && p <= maxHistoryPages; p++ {
		next, err := c.client.getPage(ctx, c.url, c.query(p))
		if err != nil {
			return c.empty(started, fmt.Errorf("page %d: %w", p, err)), nil
		}
		records = append(records, next.Data...)
	}
	c.client.observe("history", "ok", started)
	return Page{
		Data: records,
		Pagination: model.Pagination{
			Page:       1,
			Limit:      c.pageSize,
			Total:      len(records),
			TotalPages: max(first.Pagination.TotalPages, 1),
		},
		Metadata: model.Metadata{Source: "api", FetchedAt: c.client.now().UTC()},
	}, nil
}

func (c *HistoryClient) query(page int) url.Values {
	q := url.Values{"page": {strconv.Itoa(page)}}
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	return q
}

func (c *HistoryClient) empty(started time.Time, err error) Page {
	c.client.observe("history", "error", started)
	if c.client.logger != nil {
		c.client.logger.Warn("history endpoint unavailable, using empty page", "err", err)
	}
	return emptyPage(c.client.now())
}

func emptyPage(now time.Time) Page {
	return Page{
		Data:       []model.RawRecord{},
		Pagination: model.Pagination{Page: 1},
		Metadata:   model.Metadata{Source: "empty", FetchedAt: now.UTC()},
	}
}
