// Package control delivers explicit stream acknowledgements to whoever owns
// the stream offsets: the trigger in this process, a control topic, or an
// HTTP endpoint.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/lsm/fnsdk/pkg/offset"
)

// Channel sends control messages.
type Channel interface {
	Send(ctx context.Context, msg offset.AckMessage) error
	Close() error
}

// Noop drops every message. Used when the trigger commits on its own.
type Noop struct{}

func (Noop) Send(context.Context, offset.AckMessage) error { return nil }

func (Noop) Close() error { return nil }

// Instrumented wraps a channel with an ack span and an outcome counter.
type Instrumented struct {
	next   Channel
	tracer trace.Tracer
	acks   *prometheus.CounterVec
}

// Instrument wraps next. A nil tracer or counter disables that concern.
func Instrument(next Channel, tracer trace.Tracer, acks *prometheus.CounterVec) *Instrumented {
	return &Instrumented{next: next, tracer: tracer, acks: acks}
}

func (c *Instrumented) Send(ctx context.Context, msg offset.AckMessage) error {
	ctx, span := tracing.StartSpan(ctx, c.tracer, tracing.SpanAck,
		trace.WithAttributes(tracing.KafkaTopicAttr(msg.Attributes.Topic)),
	)
	defer span.End()

	err := c.next.Send(ctx, msg)
	status := "ok"
	if err != nil {
		status = "error"
		tracing.SetSpanError(span, err)
	} else {
		tracing.SetSpanOK(span)
	}
	if c.acks != nil {
		c.acks.WithLabelValues(status).Inc()
	}
	return err
}

func (c *Instrumented) Close() error {
	return c.next.Close()
}

// Position resolves the partition and offset of an ack message into the
// integer types a stream client commits with.
func Position(msg offset.AckMessage) (topic string, partition int32, off int64, err error) {
	p, err := toInt64(msg.Attributes.Partition)
	if err != nil {
		return "", 0, 0, fmt.Errorf("partition: %w", err)
	}
	if p < math.MinInt32 || p > math.MaxInt32 {
		return "", 0, 0, fmt.Errorf("partition %d out of range", p)
	}
	off, err = toInt64(msg.Attributes.Offset)
	if err != nil {
		return "", 0, 0, fmt.Errorf("offset: %w", err)
	}
	return msg.Attributes.Topic, int32(p), off, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
