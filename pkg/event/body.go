package event

import (
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// jsonBody parses bodies with numbers preserved as json.Number so large
// integers survive decoding.
var jsonBody = sonic.Config{UseNumber: true}.Froze()

// Diagnostics receives non-fatal decode anomalies. Implementations must be
// safe for concurrent use.
type Diagnostics interface {
	Diagnose(msg string, args ...any)
}

// LogDiagnostics writes each anomaly as one structured log line.
type LogDiagnostics struct {
	Logger *slog.Logger
}

// Diagnose implements Diagnostics.
func (d LogDiagnostics) Diagnose(msg string, args ...any) {
	d.Logger.Warn(msg, args...)
}

// NewDiagnostics returns a line-oriented JSON diagnostics sink writing to w.
// A nil writer selects stderr.
func NewDiagnostics(w io.Writer) Diagnostics {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn})
	return LogDiagnostics{Logger: slog.New(h).With("component", "body-decoder")}
}

type discard struct{}

func (discard) Diagnose(string, ...any) {}

// Discard drops every diagnostic.
var Discard Diagnostics = discard{}

// DecodeBody decodes a body that arrived as raw bytes or text. Structured
// values are returned untouched. A JSON content type triggers a parse; if the
// bytes are not UTF-8 or not JSON, a diagnostic is emitted and the original
// value is returned. This function never fails.
func DecodeBody(body any, contentType string, diag Diagnostics) any {
	raw, ok := rawBytes(body)
	if !ok || contentType != ContentTypeJSON {
		return body
	}
	if diag == nil {
		diag = Discard
	}
	if !utf8.Valid(raw) {
		diag.Diagnose("body is not valid utf-8, keeping raw form",
			"content_type", contentType,
			"size", len(raw),
		)
		return body
	}
	var decoded any
	if err := jsonBody.Unmarshal(raw, &decoded); err != nil {
		diag.Diagnose("failed to decode json body, keeping raw form",
			"content_type", contentType,
			"size", len(raw),
			"error", err,
		)
		return body
	}
	return decoded
}

// DecodeArmoredBody decodes a base64-armored body. If the armor cannot be
// removed the original value is returned. A JSON content type is then parsed
// from the unarmored bytes, falling back to those bytes on failure.
func DecodeArmoredBody(body any, contentType string, diag Diagnostics) any {
	raw, ok := rawBytes(body)
	if !ok {
		return body
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(decoded, raw)
	if err != nil {
		return body
	}
	decoded = decoded[:n]
	if contentType != ContentTypeJSON {
		return decoded
	}
	var structured any
	if err := jsonBody.Unmarshal(decoded, &structured); err != nil {
		return decoded
	}
	return structured
}

// IsStructured reports whether a body is already a decoded value rather than
// raw bytes or text.
func IsStructured(body any) bool {
	switch body.(type) {
	case nil, []byte, string:
		return false
	default:
		return true
	}
}

func rawBytes(body any) ([]byte, bool) {
	switch b := body.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	default:
		return nil, false
	}
}
