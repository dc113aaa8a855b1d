// Package kafka wires the distress alert queue onto Kafka. Producing is
// synchronous so the caller knows whether the job is durable; consuming is a
// group consumer with bounded per-record retries and a dead-letter topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"sharepairs/internal/distress"
)

// AlertQueue publishes distress queue records to the alert topic. Records are
// keyed by event id so redeliveries of the same event stay ordered.
type AlertQueue struct {
	client *kgo.Client
	topic  string
}

func NewAlertQueue(brokers []string, topic string) (*AlertQueue, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &AlertQueue{client: client, topic: topic}, nil
}

// Enqueue produces the record and waits for the broker ack. An error means
// the job is not durable and the caller must record the failure.
func (q *AlertQueue) Enqueue(ctx context.Context, rec distress.QueueRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal queue record: %w", err)
	}
	record := &kgo.Record{
		Topic: q.topic,
		Key:   []byte(rec.EventID),
		Value: payload,
	}
	if err := q.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce alert record: %w", err)
	}
	return nil
}

func (q *AlertQueue) Close() {
	q.client.Close()
}
