// Package session runs a function handler over the wire messages one trigger
// delivers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/fnsdk/internal/control"
	"github.com/lsm/fnsdk/internal/correlation"
	"github.com/lsm/fnsdk/internal/dlq"
	"github.com/lsm/fnsdk/internal/observability"
	"github.com/lsm/fnsdk/internal/source"
	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/lsm/fnsdk/pkg/codec"
	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/offset"
	"github.com/lsm/fnsdk/pkg/platform"
	"github.com/lsm/fnsdk/pkg/response"
	"github.com/lsm/fnsdk/pkg/runtime"
)

// Config holds session configuration.
type Config struct {
	FunctionName string
	Codec        codec.Options
	Trigger      event.TriggerInfo
	// ExplicitAck sends an acknowledgement on the control channel after each
	// event has been handled.
	ExplicitAck bool
	// Workers bounds concurrent handler invocations. Each worker owns a
	// runtime.Context. Defaults to 1.
	Workers int
}

// Session decodes wire messages with the codec chosen at construction, invokes
// the handler per event and encodes the replies.
type Session struct {
	config  Config
	source  source.Source
	decoder codec.Decoder
	handler runtime.Handler
	workers chan *runtime.Context

	control  control.Channel
	dlq      *dlq.Handler
	platform *platform.Platform
	metrics  *observability.Metrics
	tracer   trace.Tracer
	logger   *observability.TraceLogger
	base     *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

func WithControl(ch control.Channel) Option {
	return func(s *Session) { s.control = ch }
}

func WithDeadLetter(h *dlq.Handler) Option {
	return func(s *Session) { s.dlq = h }
}

func WithPlatform(p *platform.Platform) Option {
	return func(s *Session) { s.platform = p }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.base = l }
}

// New resolves the decoder once and prepares the worker contexts.
func New(cfg Config, src source.Source, h runtime.Handler, opts ...Option) (*Session, error) {
	if h == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &Session{
		config:  cfg,
		source:  src,
		handler: h,
		control: control.Noop{},
		base:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base = s.base.With("function", cfg.FunctionName)
	s.logger = observability.NewTraceLogger(s.base)

	if cfg.Codec.Keys == "" {
		cfg.Codec.Keys = codec.KeysTyped
	}
	if cfg.Codec.Diagnostics == nil {
		cfg.Codec.Diagnostics = observability.BodyDiagnostics{Logger: s.base, Metrics: s.metrics}
	}
	dec, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	s.decoder = dec
	s.config.Codec = cfg.Codec

	s.workers = make(chan *runtime.Context, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		s.workers <- runtime.NewContext(s.base.With("worker_id", i), s.platform, i, cfg.Trigger)
	}
	return s, nil
}

// Run serves messages from the source until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if s.source == nil {
		return errors.New("session has no source")
	}
	s.base.Info("starting session",
		"trigger", s.config.Trigger.Kind,
		"format", s.config.Codec.Format,
		"keys", s.config.Codec.Keys,
		"batch", s.config.Codec.Batch,
	)
	return s.source.Start(ctx, s.Handle)
}

// Handle processes one wire message. Undecodable envelopes are dead-lettered
// and answered with 400 replies; an error is returned only when a failure
// could not be dead-lettered, so that stream triggers leave it uncommitted.
func (s *Session) Handle(ctx context.Context, msg source.Message) (source.Reply, error) {
	ctx = correlation.ExtractHeaders(ctx, msg.Headers)

	res, err := s.decode(ctx, msg)
	if err != nil {
		s.logger.Warn(ctx, "undecodable message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		if dlqErr := s.deadLetter(ctx, msg, -1, dlq.ReasonEnvelope, err, ""); dlqErr != nil {
			return source.Reply{}, dlqErr
		}
		return s.reply(response.FromHandlerOutput(response.WithStatus{Code: http.StatusBadRequest, Body: err.Error()}))
	}

	out := make([]response.Response, len(res.Events))
	var failed []error
	for i, e := range res.Events {
		if elemErr := res.Errors[i]; elemErr != nil {
			s.logger.Warn(ctx, "undecodable batch element", "index", i, "error", elemErr)
			if dlqErr := s.deadLetter(ctx, msg, i, dlq.ReasonEnvelope, elemErr, ""); dlqErr != nil {
				failed = append(failed, dlqErr)
			}
			out[i] = response.FromHandlerOutput(response.WithStatus{Code: http.StatusBadRequest, Body: elemErr.Error()})
			continue
		}

		resp, handlerErr := s.invoke(ctx, e)
		out[i] = resp
		if handlerErr != nil {
			corr := correlation.ForEvent(e)
			if dlqErr := s.deadLetter(ctx, msg, i, dlq.ReasonHandler, handlerErr, corr.Value); dlqErr != nil {
				// Left unacked so the stream redelivers it.
				failed = append(failed, dlqErr)
				continue
			}
		}
		if s.config.ExplicitAck {
			if ackErr := s.ack(ctx, e); ackErr != nil {
				failed = append(failed, ackErr)
			}
		}
	}
	if len(failed) > 0 {
		return source.Reply{}, errors.Join(failed...)
	}

	if !s.config.Codec.Batch {
		return s.reply(out[0])
	}
	return s.replyBatch(out)
}

func (s *Session) decode(ctx context.Context, msg source.Message) (codec.Result, error) {
	format := string(s.config.Codec.Format)
	_, span := tracing.StartSpan(ctx, s.tracer, tracing.SpanMessageDecode,
		trace.WithAttributes(tracing.CodecFormatAttr(format)),
	)
	defer span.End()

	res, err := s.decoder.Decode(msg.Value)
	if err != nil {
		tracing.SetSpanError(span, err)
		s.countEnvelopeError()
		return res, err
	}
	span.SetAttributes(tracing.BatchSizeAttr(len(res.Events)))
	for _, elemErr := range res.Errors {
		if elemErr != nil {
			s.countEnvelopeError()
		}
	}
	if s.metrics != nil {
		s.metrics.EventsDecoded.WithLabelValues(format, string(s.config.Codec.Keys)).Add(float64(len(res.OK())))
	}
	tracing.SetSpanOK(span)
	return res, nil
}

func (s *Session) countEnvelopeError() {
	if s.metrics != nil {
		s.metrics.EnvelopeErrors.WithLabelValues(string(s.config.Codec.Format)).Inc()
	}
}

// invoke runs the handler on one event. Handler errors and panics become 500
// replies and are also returned.
func (s *Session) invoke(ctx context.Context, e *event.Event) (resp response.Response, err error) {
	ctx = correlation.ExtractTraceContext(ctx, e)
	corr := correlation.ForEvent(e)

	attrs := append(tracing.TriggerAttrs(s.config.Trigger.Kind, s.config.Trigger.Name),
		tracing.EventIDAttr(e.ID),
		tracing.CorrelationAttr(corr.Value),
	)
	ctx, span := tracing.StartSpan(ctx, s.tracer, tracing.SpanHandlerInvoke, trace.WithAttributes(attrs...))
	defer span.End()

	var worker *runtime.Context
	select {
	case worker = <-s.workers:
	case <-ctx.Done():
		tracing.SetSpanError(span, ctx.Err())
		return response.FromHandlerOutput(response.WithStatus{Code: http.StatusServiceUnavailable, Body: ctx.Err().Error()}), ctx.Err()
	}
	defer func() { s.workers <- worker }()

	logger := s.logger.For(ctx).With("event_id", e.ID, "correlation_id", corr.Value)
	start := time.Now()
	out, err := s.call(worker.WithLogger(logger), e)
	if s.metrics != nil {
		s.metrics.HandlerDuration.WithLabelValues(s.config.Trigger.Kind).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		errType := "error"
		if errors.Is(err, errPanic) {
			errType = "panic"
		}
		span.SetAttributes(tracing.ErrorTypeAttr(errType))
		tracing.SetSpanError(span, err)
		logger.Error("handler failed", "error", err, "error_type", errType)
		return response.FromHandlerOutput(response.WithStatus{Code: http.StatusInternalServerError, Body: err.Error()}), err
	}
	resp = response.FromHandlerOutput(out)
	span.SetAttributes(tracing.HTTPStatusAttr(resp.StatusCode))
	tracing.SetSpanOK(span)
	return resp, nil
}

var errPanic = errors.New("handler panic")

func (s *Session) call(ctx *runtime.Context, e *event.Event) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return s.handler(ctx, e)
}

func (s *Session) ack(ctx context.Context, e *event.Event) error {
	msg := offset.FromEvent(e).CompileExplicitAckMessage()
	if err := s.control.Send(ctx, msg); err != nil {
		s.logger.Error(ctx, "explicit ack failed",
			"topic", msg.Attributes.Topic,
			"partition", msg.Attributes.Partition,
			"offset", msg.Attributes.Offset,
			"error", err,
		)
		return fmt.Errorf("ack %s: %w", msg.Attributes.Topic, err)
	}
	return nil
}

func (s *Session) deadLetter(ctx context.Context, msg source.Message, index int, reason string, cause error, correlationID string) error {
	if s.dlq == nil {
		return nil
	}
	info := dlq.FailureInfo{
		Reason:        reason,
		ErrorMessage:  cause.Error(),
		FunctionName:  s.config.FunctionName,
		CorrelationID: correlationID,
		OriginalTopic: msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		BatchIndex:    index,
	}
	if err := s.dlq.Send(ctx, nil, msg.Value, info); err != nil {
		s.logger.Error(ctx, "failed to send to DLQ", "reason", reason, "error", err)
		return err
	}
	return nil
}

func (s *Session) reply(resp response.Response) (source.Reply, error) {
	body, err := sonic.ConfigStd.Marshal(resp.Wire())
	if err != nil {
		resp = encodeFailure(err)
		if body, err = sonic.ConfigStd.Marshal(resp.Wire()); err != nil {
			return source.Reply{}, fmt.Errorf("encode reply: %w", err)
		}
	}
	return source.Reply{StatusCode: resp.StatusCode, ContentType: response.ContentTypeJSON, Body: body}, nil
}

func (s *Session) replyBatch(out []response.Response) (source.Reply, error) {
	wire := make([]map[string]any, len(out))
	for i, r := range out {
		if _, err := sonic.ConfigStd.Marshal(r.Wire()); err != nil {
			r = encodeFailure(err)
		}
		wire[i] = r.Wire()
	}
	body, err := sonic.ConfigStd.Marshal(wire)
	if err != nil {
		return source.Reply{}, fmt.Errorf("encode reply: %w", err)
	}
	return source.Reply{StatusCode: http.StatusOK, ContentType: response.ContentTypeJSON, Body: body}, nil
}

// encodeFailure replaces a reply whose body has no JSON form.
func encodeFailure(err error) response.Response {
	return response.FromHandlerOutput(response.WithStatus{
		Code: http.StatusInternalServerError,
		Body: fmt.Sprintf("encode reply: %v", err),
	})
}

// Shutdown closes the source and the session's outputs. Returns all errors joined.
func (s *Session) Shutdown(ctx context.Context) error {
	s.base.Info("shutting down session")

	var errs []error
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source close: %w", err))
		}
	}
	if err := s.control.Close(); err != nil {
		errs = append(errs, fmt.Errorf("control close: %w", err))
	}
	if s.dlq != nil {
		if err := s.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dlq close: %w", err))
		}
	}
	return errors.Join(errs...)
}
