// Package alerts publishes reconciliation alerts to Kafka so the finance
// on-call sees money/record divergence without tailing application logs.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"marquee/internal/payout/models"
)

type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type alertEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// NewKafkaPublisher connects to the given brokers and pings them once so a
// misconfigured broker list fails at startup rather than at the first alert.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka brokers: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Publish produces the alert synchronously. Alerts are rare and each one
// matters, so we wait for the broker ack instead of batching.
func (p *KafkaPublisher) Publish(ctx context.Context, entry *models.AuditLogEntry) error {
	payload, err := json.Marshal(alertEvent{
		ID:        entry.ID,
		Action:    entry.Action,
		Detail:    entry.Detail,
		Severity:  string(entry.Severity),
		Timestamp: entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.Action),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce alert: %w", err)
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "reconciliation alert published",
			"topic", p.topic,
			"action", entry.Action,
		)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
