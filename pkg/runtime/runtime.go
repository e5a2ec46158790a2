// Package runtime defines what a function handler receives and returns.
package runtime

import (
	"log/slog"
	"maps"
	"net/http"

	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/platform"
	"github.com/lsm/fnsdk/pkg/response"
)

// Version is reported by the built-in echo handler.
const Version = "0.1.0"

// Context is handed to every handler invocation. One Context exists per
// worker; UserData persists across the events that worker handles and is
// not shared with other workers.
type Context struct {
	Logger   *slog.Logger
	Platform *platform.Platform
	WorkerID int
	Trigger  event.TriggerInfo
	UserData map[string]any
}

// NewContext creates a worker context. A nil logger uses slog.Default and a
// nil platform becomes a local one in the default namespace.
func NewContext(logger *slog.Logger, p *platform.Platform, workerID int, trigger event.TriggerInfo) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = platform.New(platform.KindLocal, "")
	}
	return &Context{
		Logger:   logger,
		Platform: p,
		WorkerID: workerID,
		Trigger:  trigger,
		UserData: map[string]any{},
	}
}

// WithLogger returns a shallow copy whose Logger is l. UserData is shared
// with the original.
func (c *Context) WithLogger(l *slog.Logger) *Context {
	cp := *c
	cp.Logger = l
	return &cp
}

// Handler processes one event. The returned value is normalized by
// response.FromHandlerOutput; a non-nil error becomes a 500 reply.
type Handler func(ctx *Context, e *event.Event) (any, error)

// Echo replies with the event's headers and content type and a body naming
// the SDK version.
func Echo(ctx *Context, e *event.Event) (any, error) {
	ctx.Logger.Debug("received request", "event", e.ToJSON())
	return response.Response{
		Headers:     maps.Clone(e.Headers),
		Body:        map[string]any{"sdk_version": Version},
		ContentType: e.ContentType,
		StatusCode:  http.StatusOK,
	}, nil
}
