//go:build integration

package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"sharepairs/internal/distress"
	"sharepairs/pkg/testutil/containers"
)

func TestAlertQueueRoundTrip(t *testing.T) {
	broker := containers.NewKafkaContainer(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	const topic = "distress.alerts.test"
	const dlq = "distress.alerts.test.dlq"
	require.NoError(t, EnsureTopics(ctx, broker.Brokers, topic, dlq))

	queue, err := NewAlertQueue(broker.Brokers, topic)
	require.NoError(t, err)
	defer queue.Close()

	var mu sync.Mutex
	var got []distress.QueueRecord
	consumer, err := NewAlertConsumer(broker.Brokers, topic, dlq, "roundtrip-group",
		func(_ context.Context, rec distress.QueueRecord) error {
			mu.Lock()
			got = append(got, rec)
			mu.Unlock()
			return nil
		}, logger)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(runCtx)
	}()

	sent := distress.QueueRecord{
		EventID:    "ev-1",
		UserID:     "alice",
		Score:      90,
		Message:    "please help",
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, queue.Enqueue(ctx, sent))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 30*time.Second, 100*time.Millisecond)

	mu.Lock()
	assert.Equal(t, sent.EventID, got[0].EventID)
	assert.Equal(t, sent.Score, got[0].Score)
	assert.True(t, sent.OccurredAt.Equal(got[0].OccurredAt))
	mu.Unlock()

	cancel()
	consumer.Close()
	<-done
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	broker := containers.NewKafkaContainer(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	const topic = "distress.alerts.poison"
	const dlq = "distress.alerts.poison.dlq"
	require.NoError(t, EnsureTopics(ctx, broker.Brokers, topic, dlq))

	queue, err := NewAlertQueue(broker.Brokers, topic)
	require.NoError(t, err)
	defer queue.Close()

	var mu sync.Mutex
	attempts := 0
	consumer, err := NewAlertConsumer(broker.Brokers, topic, dlq, "poison-group",
		func(context.Context, distress.QueueRecord) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("smtp down")
		}, logger)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(runCtx)
	}()

	require.NoError(t, queue.Enqueue(ctx, distress.QueueRecord{EventID: "ev-poison", UserID: "alice", Score: 99}))

	// The record lands on the DLQ with the failure reason after retries are
	// exhausted.
	dlqClient, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(dlq),
	)
	require.NoError(t, err)
	defer dlqClient.Close()

	deadline := time.Now().Add(60 * time.Second)
	var dead *kgo.Record
	for dead == nil && time.Now().Before(deadline) {
		pollCtx, pollCancel := context.WithTimeout(ctx, 2*time.Second)
		fetches := dlqClient.PollFetches(pollCtx)
		pollCancel()
		fetches.EachRecord(func(r *kgo.Record) {
			dead = r
		})
	}
	require.NotNil(t, dead, "record never reached the DLQ")

	assert.Equal(t, "ev-poison", string(dead.Key))
	headers := make(map[string]string, len(dead.Headers))
	for _, h := range dead.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, topic, headers["source-topic"])
	assert.Contains(t, headers["error"], "smtp down")

	mu.Lock()
	assert.Equal(t, maxHandleAttempts, attempts)
	mu.Unlock()

	cancel()
	consumer.Close()
	<-done
}
