// Package events announces finished runs on Kafka so downstream consumers
// (dashboards, evaluation jobs) can pick up new run files.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/resilience"
)

const TypeRunCompleted = "run.completed"

// RunCompleted is published once per written run file.
type RunCompleted struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	Model       string    `json:"model"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"index_fingerprint"`
	Queries     int       `json:"queries"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Lines       int       `json:"lines"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type Emitter struct {
	pub    Publisher
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewEmitter(pub Publisher, retry resilience.RetryConfig) *Emitter {
	return &Emitter{
		pub:    pub,
		retry:  retry,
		logger: slog.Default().With("component", "run-events"),
	}
}

// RunCompleted publishes ev keyed by run id, retrying transient failures.
func (e *Emitter) RunCompleted(ctx context.Context, ev RunCompleted) error {
	ev.Type = TypeRunCompleted
	err := resilience.Retry(ctx, "publish "+ev.RunID, e.retry, func() error {
		return e.pub.Publish(ctx, kafka.Event{Key: ev.RunID, Value: ev})
	})
	if err != nil {
		return err
	}
	e.logger.Info("run event published", "run_id", ev.RunID, "model", ev.Model)
	return nil
}
