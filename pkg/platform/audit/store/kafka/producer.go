// Package kafka publishes audit events to a Kafka topic so they outlive the
// process and the secure store entries they describe.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "piiguard/pkg/platform/audit"
)

const (
	DefaultTopic      = "piiguard.audit"
	defaultPartitions = 3
)

// Producer implements audit.Sink on top of a franz-go client.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures a Producer.
type Option func(*Producer)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(p *Producer) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = logger
	}
}

// New connects to brokers. Records are keyed by session so all events of one
// session land on the same partition in order.
func New(brokers []string, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	p := &Producer{topic: DefaultTopic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(p.topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, defaultPartitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", topic, r.Err)
		}
	}
	return nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	ActorHash string `json:"actor_hash,omitempty"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Append produces one record synchronously.
func (p *Producer) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(payload{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		SessionID: event.SessionID.String(),
		Action:    event.Action,
		ActorHash: event.ActorHash,
		Success:   event.Success,
		ErrorCode: event.ErrorCode,
		RequestID: event.RequestID,
		Detail:    event.Detail,
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka: flush on close failed", "error", err)
	}
	p.client.Close()
}
