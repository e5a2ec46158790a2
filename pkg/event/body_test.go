package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Diagnose(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprint(append([]any{msg}, args...)...))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func TestDecodeBody_JSON(t *testing.T) {
	rec := &recorder{}
	got := DecodeBody([]byte(`{"a":1,"b":[true,"x"]}`), ContentTypeJSON, rec)

	want := map[string]any{"a": json.Number("1"), "b": []any{true, "x"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
	if rec.count() != 0 {
		t.Errorf("expected no diagnostics, got %v", rec.lines)
	}
}

func TestDecodeBody_JSONText(t *testing.T) {
	got := DecodeBody(`[1,2]`, ContentTypeJSON, nil)
	want := []any{json.Number("1"), json.Number("2")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestDecodeBody_InvalidJSONKeepsRaw(t *testing.T) {
	rec := &recorder{}
	raw := []byte("not json")
	got := DecodeBody(raw, ContentTypeJSON, rec)

	b, ok := got.([]byte)
	if !ok || !bytes.Equal(b, raw) {
		t.Fatalf("expected original bytes, got %#v", got)
	}
	if rec.count() != 1 {
		t.Errorf("expected one diagnostic, got %d", rec.count())
	}
}

func TestDecodeBody_InvalidUTF8KeepsRaw(t *testing.T) {
	rec := &recorder{}
	raw := []byte{0x80, 'a', 'b', 'c'}
	got := DecodeBody(raw, ContentTypeJSON, rec)

	if b, ok := got.([]byte); !ok || !bytes.Equal(b, raw) {
		t.Fatalf("expected original bytes, got %#v", got)
	}
	if rec.count() != 1 {
		t.Errorf("expected one diagnostic, got %d", rec.count())
	}
}

func TestDecodeBody_OtherContentTypeUntouched(t *testing.T) {
	rec := &recorder{}
	got := DecodeBody([]byte(`{"a":1}`), "text/plain", rec)
	if b, ok := got.([]byte); !ok || string(b) != `{"a":1}` {
		t.Errorf("expected raw bytes, got %#v", got)
	}
	if rec.count() != 0 {
		t.Error("expected no diagnostics for non-json content type")
	}
}

func TestDecodeBody_StructuredUntouched(t *testing.T) {
	body := map[string]any{"k": "v"}
	got := DecodeBody(body, ContentTypeJSON, nil)
	if !reflect.DeepEqual(got, body) {
		t.Errorf("expected structured body unchanged, got %#v", got)
	}
}

func TestDecodeArmoredBody(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		contentType string
		want        any
	}{
		{"bytes", "Ynl0ZXMtYm9keQ==", "text/plain", []byte("bytes-body")},
		{"json", "eyJhIjoxfQ==", ContentTypeJSON, map[string]any{"a": json.Number("1")}},
		{"json fallback to bytes", "bm90IGpzb24=", ContentTypeJSON, []byte("not json")},
		{"not base64", "str-body", "text/plain", "str-body"},
		{"structured", map[string]any{"x": "y"}, ContentTypeJSON, map[string]any{"x": "y"}},
		{"nil", nil, ContentTypeJSON, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeArmoredBody(tt.body, tt.contentType, nil)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestNewDiagnostics_WritesLines(t *testing.T) {
	var buf safeBuffer
	diag := NewDiagnostics(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			DecodeBody([]byte("{"), ContentTypeJSON, diag)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 diagnostic lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("diagnostic line is not valid JSON: %s", line)
		}
		if !strings.Contains(line, `"component":"body-decoder"`) {
			t.Errorf("expected component attribute in %s", line)
		}
	}
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
