package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lsm/fnsdk/internal/correlation"
	"github.com/lsm/fnsdk/internal/kafka"
	"github.com/lsm/fnsdk/internal/source"
	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds Kafka trigger configuration.
type Config struct {
	Cluster       *kafka.ClusterConfig
	Topic         string
	ConsumerGroup string
	StartOffset   string // "earliest" or "latest" (default)
	// ExplicitAck leaves commits to Ack calls instead of committing each
	// record once the handler returns.
	ExplicitAck bool
}

// consumer is the slice of *kgo.Client the source needs.
type consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	Close()
}

// Source consumes wire messages from a Kafka topic.
type Source struct {
	client      consumer
	topic       string
	explicitAck bool
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reset := kgo.NewOffset().AtEnd()
	if cfg.StartOffset == "earliest" {
		reset = kgo.NewOffset().AtStart()
	}

	opts, err := kafka.ClientOptions(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(reset),
		kgo.DisableAutoCommit(),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	return newSource(client, cfg, logger), nil
}

func newSource(client consumer, cfg Config, logger *slog.Logger) *Source {
	return &Source{
		client:      client,
		topic:       cfg.Topic,
		explicitAck: cfg.ExplicitAck,
		logger:      logger,
		tracer:      noop.NewTracerProvider().Tracer("kafka-source"),
	}
}

func (s *Source) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// Start polls until ctx is cancelled. A record whose handler fails is not
// committed, so it is redelivered after a rebalance or restart.
func (s *Source) Start(ctx context.Context, h source.Handler) error {
	s.logger.Info("starting kafka consumer", "topic", s.topic, "explicit_ack", s.explicitAck)

	for {
		fetches := s.client.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				s.logger.Error("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			s.deliver(ctx, h, record)
		})

		// the last fetch is fully drained before exiting
		if ctx.Err() != nil {
			s.logger.Info("kafka source drained", "topic", s.topic)
			return ctx.Err()
		}
	}
}

func (s *Source) deliver(ctx context.Context, h source.Handler, record *kgo.Record) {
	msg := source.Message{
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
	}
	for _, hdr := range record.Headers {
		msg.Headers[hdr.Key] = string(hdr.Value)
	}

	recordCtx := correlation.ExtractHeaders(ctx, msg.Headers)
	spanCtx, span := tracing.StartSpan(recordCtx, s.tracer, tracing.SpanKafkaConsume,
		trace.WithAttributes(
			tracing.KafkaTopicAttr(record.Topic),
			tracing.KafkaPartitionAttr(record.Partition),
			tracing.KafkaOffsetAttr(record.Offset),
		),
	)
	defer span.End()

	s.logger.Debug("message received", "topic", record.Topic, "partition", record.Partition, "offset", record.Offset)

	if _, err := h(spanCtx, msg); err != nil {
		tracing.SetSpanError(span, err)
		s.logger.Error("handler error", "topic", record.Topic, "offset", record.Offset, "error", err)
		return
	}
	if s.explicitAck {
		tracing.SetSpanOK(span)
		return
	}

	s.client.MarkCommitRecords(record)
	if err := s.client.CommitMarkedOffsets(ctx); err != nil {
		tracing.SetSpanError(span, err)
		s.logger.Error("commit error", "topic", record.Topic, "offset", record.Offset, "error", err)
		return
	}
	tracing.SetSpanOK(span)
}

// Ack commits the given record position. The committed group offset is the
// next record to read, so acking offset N resumes at N+1. An empty topic, or a
// path-style one such as "/" or "/orders", names the consumed topic; any other
// topic is rejected since committing it would never advance this consumer.
func (s *Source) Ack(ctx context.Context, topic string, partition int32, offset int64) error {
	topic = strings.TrimPrefix(topic, "/")
	if topic == "" {
		topic = s.topic
	}
	if topic != s.topic {
		return fmt.Errorf("ack for topic %q, consuming %q", topic, s.topic)
	}
	rec := &kgo.Record{Topic: topic, Partition: partition, Offset: offset, LeaderEpoch: -1}
	if err := s.client.CommitRecords(ctx, rec); err != nil {
		return fmt.Errorf("commit %s[%d]@%d: %w", topic, partition, offset, err)
	}
	return nil
}

func (s *Source) Close() error {
	s.client.Close()
	return nil
}
