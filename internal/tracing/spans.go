package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by every span the runtime emits.
const (
	AttrTriggerKind    = "fnsdk.trigger.kind"
	AttrTriggerName    = "fnsdk.trigger.name"
	AttrEventID        = "fnsdk.event.id"
	AttrCodecFormat    = "fnsdk.codec.format"
	AttrBatchSize      = "fnsdk.batch.size"
	AttrFunctionName   = "fnsdk.function.name"
	AttrCorrelationID  = "fnsdk.correlation_id"
	AttrKafkaTopic     = "messaging.kafka.topic"
	AttrKafkaPartition = "messaging.kafka.partition"
	AttrKafkaOffset    = "messaging.kafka.offset"
	AttrHTTPTarget     = "http.target"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatus     = "http.status_code"
	AttrErrorType      = "error.type"
)

// Span names.
const (
	SpanMessageDecode = "fnsdk.message.decode"
	SpanHandlerInvoke = "fnsdk.handler.invoke"
	SpanAck           = "fnsdk.ack"
	SpanFunctionCall  = "fnsdk.function.call"
	SpanKafkaConsume  = "kafka.consume"
	SpanKafkaPublish  = "kafka.publish"
)

// StartSpan starts a span. A nil tracer yields the span already in ctx.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records err and marks the span failed.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span successful.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func TriggerAttrs(kind, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTriggerKind, kind),
		attribute.String(AttrTriggerName, name),
	}
}

func EventIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

func CodecFormatAttr(format string) attribute.KeyValue {
	return attribute.String(AttrCodecFormat, format)
}

func BatchSizeAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

func FunctionNameAttr(name string) attribute.KeyValue {
	return attribute.String(AttrFunctionName, name)
}

func CorrelationAttr(id string) attribute.KeyValue {
	return attribute.String(AttrCorrelationID, id)
}

func KafkaTopicAttr(topic string) attribute.KeyValue {
	return attribute.String(AttrKafkaTopic, topic)
}

func KafkaPartitionAttr(partition int32) attribute.KeyValue {
	return attribute.Int64(AttrKafkaPartition, int64(partition))
}

func KafkaOffsetAttr(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrKafkaOffset, offset)
}

func HTTPTargetAttr(url string) attribute.KeyValue {
	return attribute.String(AttrHTTPTarget, url)
}

func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

func HTTPStatusAttr(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String(AttrErrorType, errType)
}
