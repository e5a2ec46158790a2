package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/lsm/fnsdk/internal/source"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBodyBytes caps a request body at 32 MiB.
const DefaultMaxBodyBytes = 32 << 20

// Config holds HTTP trigger configuration.
type Config struct {
	ListenAddr   string
	Path         string
	MaxBodyBytes int64
}

// Source accepts wire messages as POST bodies and answers each request with
// the session's reply.
type Source struct {
	cfg    Config
	logger *slog.Logger
	server *http.Server

	// ListenAddr is the bound address once ready is closed.
	ListenAddr string
	ready      chan struct{}
}

func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("HTTP listen address is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, logger: logger, ready: make(chan struct{})}, nil
}

// Ready is closed once the listener is bound.
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

// Handler serves the trigger path with h. Trace context in the request is
// picked up by the otelhttp middleware.
func (s *Source) Handler(h source.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			if len(v) > 0 {
				headers[k] = v[0]
			}
		}

		reply, err := h(r.Context(), source.Message{Value: body, Headers: headers})
		if err != nil {
			s.logger.Error("handler error", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeReply(w, reply)
	})
	return otelhttp.NewHandler(mux, "fnsdk.http.trigger")
}

func writeReply(w http.ResponseWriter, reply source.Reply) {
	if reply.ContentType != "" {
		w.Header().Set("Content-Type", reply.ContentType)
	}
	code := reply.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write(reply.Body)
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Source) Start(ctx context.Context, h source.Handler) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.ListenAddr = lis.Addr().String()
	s.server = &http.Server{Handler: s.Handler(h)}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http trigger listening", "addr", s.ListenAddr, "path", s.cfg.Path)
		close(s.ready)
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		if err := s.server.Shutdown(context.Background()); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Source) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
