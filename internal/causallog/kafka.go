package causallog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// KafkaMirror wraps a Log and mirrors every appended entry to a Kafka topic
// for downstream consumers. Best-effort: the wrapped log is the source of
// truth, and a produce failure is logged, never surfaced to the operation
// caller.
type KafkaMirror struct {
	inner  Log
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaMirror builds the mirror and ensures the topic exists.
func NewKafkaMirror(ctx context.Context, inner Log, brokers []string, topic string, logger *slog.Logger) (*KafkaMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is fine; anything else is a broker problem the
		// first produce will also hit.
		logger.Debug("create causal log topic", "topic", topic, "result", err)
	}

	return &KafkaMirror{inner: inner, client: client, topic: topic, logger: logger}, nil
}

func (m *KafkaMirror) Append(ctx context.Context, entry domain.CausalEntry) error {
	if err := m.inner.Append(ctx, entry); err != nil {
		return err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		m.logger.Error("encode causal entry for mirror", "error", err)
		return nil
	}
	record := &kgo.Record{
		Key:   []byte(entry.TransactionID),
		Value: payload,
		Topic: m.topic,
	}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Warn("mirror causal entry to kafka",
				"transaction_id", string(entry.TransactionID), "error", err)
		}
	})
	return nil
}

func (m *KafkaMirror) Entries(ctx context.Context, from, limit int) ([]domain.CausalEntry, error) {
	return m.inner.Entries(ctx, from, limit)
}

func (m *KafkaMirror) Len(ctx context.Context) (int, error) {
	return m.inner.Len(ctx)
}

// Close flushes pending produces and releases the client.
func (m *KafkaMirror) Close(ctx context.Context) error {
	err := m.client.Flush(ctx)
	m.client.Close()
	return err
}
