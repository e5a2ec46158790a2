package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/lsm/fnsdk/pkg/event"
)

const (
	HeaderCorrelationID  = "fnsdk-correlation-id"
	HeaderXCorrelationID = "x-correlation-id"
	HeaderXRequestID     = "x-request-id"
	HeaderTraceparent    = "traceparent"

	SourceEventID   = "event-id"
	SourceGenerated = "generated"
)

type ID struct {
	Value  string
	Source string
}

// headerOrder is the lookup priority for an existing correlation id.
var headerOrder = []string{HeaderCorrelationID, HeaderXCorrelationID, HeaderXRequestID}

// ForEvent finds the correlation id of an event. Header names match
// case-insensitively. Priority: fnsdk-correlation-id > x-correlation-id >
// x-request-id > traceparent trace id > event id > new UUID.
func ForEvent(e *event.Event) ID {
	for _, h := range headerOrder {
		if v, ok := e.HeaderString(h); ok && v != "" {
			return ID{Value: v, Source: h}
		}
	}
	if tp, ok := e.HeaderString(HeaderTraceparent); ok {
		if traceID := extractTraceID(tp); traceID != "" {
			return ID{Value: traceID, Source: HeaderTraceparent}
		}
	}
	if e.ID != "" {
		return ID{Value: e.ID, Source: SourceEventID}
	}
	return ID{Value: uuid.New().String(), Source: SourceGenerated}
}

// extractTraceID parses W3C traceparent: version-traceid-parentid-flags.
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) >= 2 && len(parts[1]) == 32 {
		return parts[1]
	}
	return ""
}

// AddToHeaders sets the correlation header, allocating the map if needed.
func AddToHeaders(headers map[string]string, id ID) map[string]string {
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	headers[HeaderCorrelationID] = id.Value
	return headers
}

// EventCarrier reads trace context out of event headers.
type EventCarrier struct {
	Event *event.Event
}

func (c EventCarrier) Get(key string) string {
	v, _ := c.Event.HeaderString(key)
	return v
}

func (c EventCarrier) Set(key, value string) {
	if c.Event.Headers == nil {
		c.Event.Headers = map[string]any{}
	}
	c.Event.Headers[key] = value
}

func (c EventCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Event.Headers))
	for k := range c.Event.Headers {
		keys = append(keys, k)
	}
	return keys
}

// ExtractTraceContext continues a trace started by whoever sent the event.
func ExtractTraceContext(ctx context.Context, e *event.Event) context.Context {
	return tracing.Propagator().Extract(ctx, EventCarrier{Event: e})
}

// InjectTraceContext writes the span in ctx into outgoing string headers,
// allocating the map if needed.
func InjectTraceContext(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string, 2)
	}
	tracing.Propagator().Inject(ctx, mapCarrier(headers))
	return headers
}

type mapCarrier map[string]string

func (m mapCarrier) Get(key string) string { return m[key] }

func (m mapCarrier) Set(key, value string) { m[key] = value }

func (m mapCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ExtractHeaders continues a trace carried in transport headers.
func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	return tracing.Propagator().Extract(ctx, mapCarrier(headers))
}
