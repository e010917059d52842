package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"StockSentinel/internal/model"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds the Kafka producer settings.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher streams advisory batches to Kafka: one message per decision,
// keyed by instrument, followed by one run summary message.
type Publisher struct {
	writer MessageWriter
	topic  string
	now    func() time.Time
}

// New creates a publisher backed by a kafka-go writer.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 100 * time.Millisecond,
	}
	return NewWithWriter(writer, cfg.Topic), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic, now: time.Now}
}

func (p *Publisher) Name() string { return "kafka" }

// DecisionEvent is the value of a per-instrument message.
type DecisionEvent struct {
	AsOf       string                 `json:"as_of"`
	SignalMode string                 `json:"signal_mode"`
	Decision   model.AdvisoryDecision `json:"decision"`
}

// SummaryEvent is the value of the per-run message.
type SummaryEvent struct {
	AsOf       string           `json:"as_of"`
	Skipped    bool             `json:"skipped"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Summary    model.RunSummary `json:"summary"`
}

// Emit publishes the batch.
func (p *Publisher) Emit(ctx context.Context, batch *model.AdvisoryBatch) error {
	asOf := model.DateKey(batch.AsOf)
	ts := p.now()
	msgs := make([]kafka.Message, 0, len(batch.Decisions)+1)
	for _, d := range batch.Decisions {
		v, err := json.Marshal(DecisionEvent{AsOf: asOf, SignalMode: batch.SignalMode, Decision: d})
		if err != nil {
			return fmt.Errorf("marshal decision %s: %w", d.InstrumentID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(d.InstrumentID),
			Value:   v,
			Time:    ts,
			Headers: []kafka.Header{{Key: "type", Value: []byte("decision")}, {Key: "action", Value: []byte(d.Action)}},
		})
	}
	v, err := json.Marshal(SummaryEvent{AsOf: asOf, Skipped: batch.Skipped, SkipReason: batch.SkipReason, Summary: batch.Summary})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	msgs = append(msgs, kafka.Message{
		Key:     []byte("summary:" + asOf),
		Value:   v,
		Time:    ts,
		Headers: []kafka.Header{{Key: "type", Value: []byte("summary")}},
	})

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
