package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer serves liveness, readiness and metrics for the runtime.
type HealthServer struct {
	ready atomic.Bool
}

func NewHealthServer() *HealthServer {
	return &HealthServer{}
}

// SetReady flips readiness, e.g. once the trigger source is consuming.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Handler routes /healthz, /readyz and, when g is non-nil, /metrics.
func (h *HealthServer) Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if h.ready.Load() {
			writeStatus(w, http.StatusOK, "ready")
			return
		}
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
	})
	if g != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(map[string]string{"status": status})
}
