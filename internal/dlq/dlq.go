package dlq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons.
const (
	ReasonEnvelope = "envelope"
	ReasonHandler  = "handler"
	ReasonEncode   = "encode"
)

// Publisher is the interface for publishing messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// FailureInfo describes why a wire message, or one element of a batch, could
// not be processed.
type FailureInfo struct {
	Reason        string
	ErrorMessage  string
	FunctionName  string
	CorrelationID string
	OriginalTopic string
	Partition     int32
	Offset        int64
	// BatchIndex is the failed element of a batch, or -1 for the whole message.
	BatchIndex int
}

// Handler publishes failed wire messages to a dead-letter topic.
type Handler struct {
	publisher Publisher
	topicFn   func(functionName string) string
	counter   *prometheus.CounterVec
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithTopic routes every failure to one topic.
func WithTopic(topic string) Option {
	return func(h *Handler) {
		h.topicFn = func(string) string { return topic }
	}
}

// WithTopicFunc overrides the default topic naming function.
func WithTopicFunc(fn func(functionName string) string) Option {
	return func(h *Handler) {
		h.topicFn = fn
	}
}

// WithCounter counts published failures by reason.
func WithCounter(c *prometheus.CounterVec) Option {
	return func(h *Handler) {
		h.counter = c
	}
}

func NewHandler(pub Publisher, opts ...Option) *Handler {
	h := &Handler{
		publisher: pub,
		topicFn:   func(name string) string { return "fnsdk-dlq-" + name },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send publishes the original wire bytes with failure headers.
func (h *Handler) Send(ctx context.Context, key, value []byte, info FailureInfo) error {
	topic := h.topicFn(info.FunctionName)

	headers := map[string]string{
		"fnsdk-reason":             info.Reason,
		"fnsdk-error-message":      info.ErrorMessage,
		"fnsdk-function-name":      info.FunctionName,
		"fnsdk-original-topic":     info.OriginalTopic,
		"fnsdk-original-partition": strconv.FormatInt(int64(info.Partition), 10),
		"fnsdk-original-offset":    strconv.FormatInt(info.Offset, 10),
		"fnsdk-batch-index":        strconv.Itoa(info.BatchIndex),
		"fnsdk-failed-at":          h.now().UTC().Format(time.RFC3339),
	}
	if info.CorrelationID != "" {
		headers["fnsdk-correlation-id"] = info.CorrelationID
	}

	if err := h.publisher.Publish(ctx, topic, key, value, headers); err != nil {
		return fmt.Errorf("dlq publish to %s: %w", topic, err)
	}
	if h.counter != nil {
		h.counter.WithLabelValues(info.Reason).Inc()
	}
	return nil
}

func (h *Handler) Close() error {
	return h.publisher.Close()
}

// NoopPublisher discards all messages. Used when no dead-letter topic is
// configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, []byte, []byte, map[string]string) error {
	return nil
}

func (*NoopPublisher) Close() error { return nil }
