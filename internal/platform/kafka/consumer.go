package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"sharepairs/internal/distress"
)

// maxHandleAttempts bounds per-record retries before dead-lettering.
const maxHandleAttempts = 3

// Handler processes one queue record. A nil return acknowledges the record;
// an error triggers a retry and eventually the dead-letter topic.
type Handler func(ctx context.Context, rec distress.QueueRecord) error

// AlertConsumer is the worker side of the alert queue. One consumer group,
// at-least-once: offsets are committed only after the record is handled or
// dead-lettered, so a crash replays unacknowledged records.
type AlertConsumer struct {
	client   *kgo.Client
	dlqTopic string
	handler  Handler
	logger   *slog.Logger
}

func NewAlertConsumer(brokers []string, topic, dlqTopic, group string, handler Handler, logger *slog.Logger) (*AlertConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &AlertConsumer{client: client, dlqTopic: dlqTopic, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled. Records are processed one at a time;
// alert volume is low and ordering per event matters more than throughput.
func (c *AlertConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(record *kgo.Record) {
			c.process(ctx, record)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.ErrorContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}

func (c *AlertConsumer) process(ctx context.Context, record *kgo.Record) {
	var rec distress.QueueRecord
	if err := json.Unmarshal(record.Value, &rec); err != nil {
		c.logger.ErrorContext(ctx, "malformed alert record, dead-lettering",
			"topic", record.Topic, "offset", record.Offset, "error", err)
		c.deadLetter(ctx, record, err)
		return
	}

	var err error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		if err = c.handler(ctx, rec); err == nil {
			return
		}
		c.logger.WarnContext(ctx, "alert record handling failed",
			"eventId", rec.EventID, "attempt", attempt, "error", err)
		if attempt < maxHandleAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	c.logger.ErrorContext(ctx, "alert record exhausted retries, dead-lettering",
		"eventId", rec.EventID, "error", err)
	c.deadLetter(ctx, record, err)
}

// deadLetter forwards the raw record to the DLQ with the failure reason in a
// header. Operators re-drive from there.
func (c *AlertConsumer) deadLetter(ctx context.Context, record *kgo.Record, cause error) {
	dlq := &kgo.Record{
		Topic: c.dlqTopic,
		Key:   record.Key,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "source-topic", Value: []byte(record.Topic)},
		},
	}
	if err := c.client.ProduceSync(ctx, dlq).FirstErr(); err != nil {
		// Offsets for this poll are still committed; the record is lost from
		// the queue but remains visible in the store as queued. Loud log so
		// operators can re-drive from the database.
		c.logger.ErrorContext(ctx, "dead-letter produce failed",
			"key", string(record.Key), "error", err)
	}
}

func (c *AlertConsumer) Close() {
	c.client.Close()
}
