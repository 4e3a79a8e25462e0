package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"obrawatch/internal/config"
	"obrawatch/internal/telemetry"
)

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher dedupes events, writes them to the broker when one is configured
// and records them in the feed.
type Publisher struct {
	writer  Writer
	feed    *Feed
	dedupe  *DedupeCache
	window  time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewPublisher(writer Writer, feed *Feed, window time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Publisher {
	if feed == nil {
		feed = NewFeed(0)
	}
	return &Publisher{
		writer:  writer,
		feed:    feed,
		dedupe:  NewDedupeCache(),
		window:  window,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// NewKafkaWriter builds the broker writer from config, or nil when
// publishing is disabled.
func NewKafkaWriter(cfg config.PublishConfig, logger *slog.Logger) Writer {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka publish disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka publish enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func (p *Publisher) Feed() *Feed {
	return p.feed
}

// Publish sends events not seen within the dedupe window and returns how
// many went out. Events the broker rejects are forgotten so a later refresh
// retries them.
func (p *Publisher) Publish(ctx context.Context, events []Event) (int, error) {
	now := p.now()
	fresh := make([]Event, 0, len(events))
	for _, ev := range events {
		if p.dedupe.Seen(ev.ID, now, p.window) {
			continue
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if p.writer != nil {
		msgs := make([]kafka.Message, 0, len(fresh))
		for _, ev := range fresh {
			value, err := json.Marshal(ev)
			if err != nil {
				p.forget(fresh)
				return 0, fmt.Errorf("encode event %s: %w", ev.ID, err)
			}
			msgs = append(msgs, kafka.Message{
				Key:   []byte(ev.WorkID),
				Value: value,
				Headers: []kafka.Header{
					{Key: "kind", Value: []byte(ev.Kind)},
					{Key: "event_id", Value: []byte(ev.ID)},
				},
				Time: ev.OccurredAt,
			})
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			p.forget(fresh)
			if p.logger != nil {
				p.logger.Warn("kafka publish failed", "err", err, "count", len(fresh))
			}
			return 0, fmt.Errorf("write messages: %w", err)
		}
	}

	outcome := "local"
	if p.writer != nil {
		outcome = "ok"
	}
	for _, ev := range fresh {
		p.feed.Add(ev)
		p.metrics.Published(string(ev.Kind), outcome)
		if p.logger != nil {
			p.logger.Info("event published", "kind", ev.Kind, "work_id", ev.WorkID, "summary", ev.Summary)
		}
	}
	return len(fresh), nil
}

func (p *Publisher) Reset() {
	p.dedupe.Reset()
	p.feed.Clear()
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// forget releases events that never reached the broker so a later refresh
// retries them.
func (p *Publisher) forget(events []Event) {
	for _, ev := range events {
		p.dedupe.Forget(ev.ID)
		p.metrics.Published(string(ev.Kind), "error")
	}
}
