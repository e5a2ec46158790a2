// Package platform lets a handler invoke another function deployed on the
// same platform.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/fnsdk/internal/tracing"
	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/response"
)

// KindLocal is the platform kind whose service names carry the namespace.
const KindLocal = "local"

// TargetHeader names the function a request is for, so a function scaled to
// zero can be started by the gateway.
const TargetHeader = "X-Nuclio-Target"

const servicePort = "8080"

// Platform describes where the runtime is deployed.
type Platform struct {
	Kind      string
	Namespace string

	client *http.Client
	tracer trace.Tracer
}

// Option configures a Platform.
type Option func(*Platform)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Platform) { p.client = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Platform) { p.tracer = t }
}

func New(kind, namespace string, opts ...Option) *Platform {
	if namespace == "" {
		namespace = "default"
	}
	p := &Platform{
		Kind:      kind,
		Namespace: namespace,
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type callOptions struct {
	serviceName string
	baseURL     string
	timeout     time.Duration
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

// WithServiceName replaces the derived service host name.
func WithServiceName(name string) CallOption {
	return func(o *callOptions) { o.serviceName = name }
}

// WithBaseURL sends the call to an explicit scheme://host[:port].
func WithBaseURL(u string) CallOption {
	return func(o *callOptions) { o.baseURL = strings.TrimSuffix(u, "/") }
}

func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// FunctionAddress is the host:port a function is served on.
func (p *Platform) FunctionAddress(name, serviceOverride string) string {
	service := serviceOverride
	if service == "" {
		if p.Kind == KindLocal {
			service = fmt.Sprintf("nuclio-%s-%s", p.Namespace, name)
		} else {
			service = "nuclio-" + name
		}
	}
	return service + ":" + servicePort
}

// CallFunction sends e to the named function and returns its reply. A map
// body is sent as JSON. JSON replies are parsed; a reply that fails to parse
// keeps its raw bytes.
func (p *Platform) CallFunction(ctx context.Context, name string, e *event.Event, opts ...CallOption) (response.Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	base := o.baseURL
	if base == "" {
		base = "http://" + p.FunctionAddress(name, o.serviceName)
	}
	method := e.Method
	if method == "" {
		method = http.MethodPost
	}
	path := e.Path
	if path == "" {
		path = event.DefaultPath
	}

	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanFunctionCall,
		trace.WithAttributes(
			tracing.FunctionNameAttr(name),
			tracing.HTTPMethodAttr(method),
			tracing.HTTPTargetAttr(base+path),
		),
	)
	defer span.End()

	body, contentType, err := requestBody(e)
	if err != nil {
		tracing.SetSpanError(span, err)
		return response.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, bytes.NewReader(body))
	if err != nil {
		tracing.SetSpanError(span, err)
		return response.Response{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		req.Header.Set(k, headerText(v))
	}
	req.Header.Set("Content-Type", contentType)
	if target, ok := e.HeaderString(TargetHeader); ok && target != "" {
		req.Header.Set(TargetHeader, target)
	} else {
		req.Header.Set(TargetHeader, name)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		tracing.SetSpanError(span, err)
		return response.Response{}, fmt.Errorf("call function %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.SetSpanError(span, err)
		return response.Response{}, fmt.Errorf("read reply from %s: %w", name, err)
	}
	span.SetAttributes(tracing.HTTPStatusAttr(resp.StatusCode))
	tracing.SetSpanOK(span)

	return reply(resp, raw), nil
}

func requestBody(e *event.Event) ([]byte, string, error) {
	if m, ok := e.Body.(map[string]any); ok {
		b, err := sonic.ConfigStd.Marshal(m)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return b, response.ContentTypeJSON, nil
	}

	contentType := e.ContentType
	if contentType == "" {
		contentType = response.ContentTypeText
	}
	if e.Body == nil {
		return nil, contentType, nil
	}
	if b, ok := e.BodyBytes(); ok {
		return b, contentType, nil
	}
	return []byte(fmt.Sprint(e.Body)), contentType, nil
}

func reply(resp *http.Response, raw []byte) response.Response {
	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = response.ContentTypeText
	}

	var body any = raw
	if contentType == response.ContentTypeJSON {
		var parsed any
		if err := sonic.ConfigStd.Unmarshal(raw, &parsed); err == nil {
			body = parsed
		}
	}
	return response.Response{
		Body:        body,
		Headers:     headers,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}
}

func headerText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
