package observability

import (
	"fmt"
	"log/slog"
)

// BodyDiagnostics logs body decode anomalies and counts them by content type.
type BodyDiagnostics struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

func (d BodyDiagnostics) Diagnose(msg string, args ...any) {
	if d.Metrics != nil {
		d.Metrics.BodyAnomalies.WithLabelValues(contentType(args)).Inc()
	}
	if d.Logger != nil {
		d.Logger.Warn(msg, args...)
	}
}

// contentType finds the content_type attribute in slog-style key/value args.
func contentType(args []any) string {
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok && k == "content_type" {
			return fmt.Sprint(args[i+1])
		}
	}
	return "unknown"
}
