package sources

import (
	"context"

	"obrawatch/internal/model"
)

type WorksClient struct {
	client *Client
	url    string
}

func NewWorksClient(client *Client, rawURL string) *WorksClient {
	return &WorksClient{client: client, url: rawURL}
}

// GetWorks returns the full works collection. Failures are logged and yield
// an empty slice; the source has no filtering of its own.
func (c *WorksClient) GetWorks(ctx context.Context) ([]model.RawRecord, error) {
	started := c.client.now()
	page, err := c.client.getPage(ctx, c.url, nil)
	if err != nil {
		c.client.observe("works", "error", started)
		if c.client.logger != nil {
			c.client.logger.Warn("works endpoint unavailable, using empty collection", "err", err)
		}
		return []model.RawRecord{}, nil
	}
	c.client.observe("works", "ok", started)
	return page.Data, nil
}
