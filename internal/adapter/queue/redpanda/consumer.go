package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	"github.com/fairyhunter13/ai-job-verdict/internal/observability"
)

// Handler processes one decoded evaluation task. Returning an error leaves
// the record uncommitted for redelivery.
type Handler func(ctx context.Context, payload domain.EvaluateTaskPayload) error

// Consumer reads evaluation tasks from the topic and fans them out to a
// fixed worker pool. Offsets are marked only after the handler returns, so
// delivery is at-least-once.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	workers int
	topic   string
}

// NewConsumer builds a group consumer on the default topic.
func NewConsumer(brokers []string, groupID string, workers int, handler Handler) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, workers, handler, TopicEvaluate)
}

// NewConsumerWithTopic builds a group consumer on a specific topic.
func NewConsumerWithTopic(brokers []string, groupID string, workers int, handler Handler, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if handler == nil {
		return nil, fmt.Errorf("missing handler")
	}
	if workers < 1 {
		workers = 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
	return &Consumer{client: client, handler: handler, workers: workers, topic: topic}, nil
}

// Run polls until the context is cancelled. Records are dispatched to a pool
// of c.workers goroutines; each record is marked for commit only after its
// handler returns.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("consumer started",
		slog.String("topic", c.topic),
		slog.Int("workers", c.workers))

	records := make(chan *kgo.Record)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range records {
				c.processRecord(ctx, rec)
			}
		}()
	}

	defer func() {
		close(records)
		wg.Wait()
		c.client.Close()
		slog.Info("consumer stopped", slog.String("topic", c.topic))
	}()

	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			select {
			case records <- rec:
			case <-ctx.Done():
			}
		})
	}
}

func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	var payload domain.EvaluateTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		// Malformed records can never succeed; mark and move on.
		slog.Error("malformed task payload dropped",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		c.client.MarkCommitRecords(rec)
		return
	}

	jobCtx := observability.ContextWithJobID(ctx, payload.JobID)
	start := time.Now()
	if err := c.handler(jobCtx, payload); err != nil {
		slog.Error("task handler failed; record left for redelivery",
			slog.String("job_id", payload.JobID),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return
	}
	c.client.MarkCommitRecords(rec)
	slog.Info("task processed",
		slog.String("job_id", payload.JobID),
		slog.Duration("elapsed", time.Since(start)))
}
