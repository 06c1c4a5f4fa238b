// Package redpanda moves evaluation tasks between the API server and the
// worker over a Redpanda/Kafka topic. Delivery is at-least-once; the verdict
// upsert keyed by job_id makes reprocessing idempotent.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// TopicEvaluate carries queued evaluation tasks.
const TopicEvaluate = "verdict-evaluate"

// Producer wraps a Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer builds a producer and ensures the topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTopic(brokers, TopicEvaluate)
}

// NewProducerWithTopic builds a producer for a specific topic. Tests use
// unique topics for isolation.
func NewProducerWithTopic(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := createTopicIfNotExists(context.Background(), client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
	return &Producer{client: client, topic: topic}, nil
}

// EnqueueEvaluate publishes the payload keyed by job id, so retries for the
// same job land on the same partition in order.
func (p *Producer) EnqueueEvaluate(ctx domain.Context, payload domain.EvaluateTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue: marshal payload: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.JobID),
		Value: b,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	observability.JobsEnqueuedTotal.WithLabelValues("evaluate").Inc()
	slog.Info("evaluate task enqueued",
		slog.String("job_id", payload.JobID),
		slog.String("topic", p.topic))
	return payload.JobID, nil
}

// Close flushes and releases the underlying client.
func (p *Producer) Close() { p.client.Close() }

var _ domain.Queue = (*Producer)(nil)
