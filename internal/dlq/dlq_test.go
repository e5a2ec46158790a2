package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockPublisher struct {
	published []publishedMessage
	err       error
	closed    bool
}

type publishedMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (m *mockPublisher) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

func TestSend_DefaultTopic(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub)

	err := h.Send(context.Background(), []byte("key-1"), []byte{0x81, 0xa2, 'i', 'd'}, FailureInfo{
		Reason:       ReasonEnvelope,
		FunctionName: "orders-fn",
		BatchIndex:   -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	msg := pub.published[0]
	if msg.topic != "fnsdk-dlq-orders-fn" {
		t.Errorf("expected topic fnsdk-dlq-orders-fn, got %s", msg.topic)
	}
	if string(msg.key) != "key-1" || len(msg.value) != 4 {
		t.Errorf("unexpected key/value %q %v", msg.key, msg.value)
	}
}

func TestSend_HeadersPopulated(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub, WithTopic("orders-dlq"))
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	err := h.Send(context.Background(), nil, []byte(`[]`), FailureInfo{
		Reason:        ReasonEnvelope,
		ErrorMessage:  `field "trigger": required field missing`,
		FunctionName:  "orders-fn",
		CorrelationID: "corr-1",
		OriginalTopic: "orders",
		Partition:     3,
		Offset:        1042,
		BatchIndex:    2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := pub.published[0]
	if msg.topic != "orders-dlq" {
		t.Errorf("expected fixed topic, got %s", msg.topic)
	}
	want := map[string]string{
		"fnsdk-reason":             "envelope",
		"fnsdk-error-message":      `field "trigger": required field missing`,
		"fnsdk-function-name":      "orders-fn",
		"fnsdk-correlation-id":     "corr-1",
		"fnsdk-original-topic":     "orders",
		"fnsdk-original-partition": "3",
		"fnsdk-original-offset":    "1042",
		"fnsdk-batch-index":        "2",
		"fnsdk-failed-at":          "2026-03-01T12:00:00Z",
	}
	for k, v := range want {
		if got := msg.headers[k]; got != v {
			t.Errorf("header %s: got %q, want %q", k, got, v)
		}
	}
}

func TestSend_OmitsEmptyCorrelation(t *testing.T) {
	pub := &mockPublisher{}
	if err := NewHandler(pub).Send(context.Background(), nil, nil, FailureInfo{Reason: ReasonHandler}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.published[0].headers["fnsdk-correlation-id"]; ok {
		t.Error("expected no correlation header")
	}
}

func TestSend_CustomTopicFunc(t *testing.T) {
	pub := &mockPublisher{}
	h := NewHandler(pub, WithTopicFunc(func(name string) string { return "custom-dlq-" + name }))

	if err := h.Send(context.Background(), nil, nil, FailureInfo{FunctionName: "test-fn"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.published[0].topic != "custom-dlq-test-fn" {
		t.Errorf("expected custom topic, got %s", pub.published[0].topic)
	}
}

func TestSend_CountsByReason(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_dlq_total"}, []string{"reason"})
	pub := &mockPublisher{}
	h := NewHandler(pub, WithCounter(counter))

	for _, reason := range []string{ReasonEnvelope, ReasonEnvelope, ReasonHandler} {
		if err := h.Send(context.Background(), nil, nil, FailureInfo{Reason: reason}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(ReasonEnvelope)); got != 2 {
		t.Errorf("expected 2 envelope failures, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(ReasonHandler)); got != 1 {
		t.Errorf("expected 1 handler failure, got %v", got)
	}
}

func TestSend_PublisherError(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_dlq_err_total"}, []string{"reason"})
	brokerDown := errors.New("broker unavailable")
	h := NewHandler(&mockPublisher{err: brokerDown}, WithCounter(counter))

	err := h.Send(context.Background(), nil, nil, FailureInfo{Reason: ReasonEnvelope})
	if !errors.Is(err, brokerDown) {
		t.Fatalf("expected wrapped publisher error, got %v", err)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(ReasonEnvelope)); got != 0 {
		t.Errorf("failed publish must not be counted, got %v", got)
	}
}

func TestClose(t *testing.T) {
	pub := &mockPublisher{}
	if err := NewHandler(pub).Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.closed {
		t.Error("expected publisher closed")
	}
}

func TestNoopPublisher_WithHandler(t *testing.T) {
	h := NewHandler(&NoopPublisher{})
	if err := h.Send(context.Background(), []byte("key"), []byte("val"), FailureInfo{Reason: ReasonEnvelope}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
