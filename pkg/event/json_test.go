package event

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func decodeRendered(t *testing.T, e *Event) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(e.ToJSON()), &out); err != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v\n%s", err, e.ToJSON())
	}
	return out
}

func TestToJSON_BytesBody(t *testing.T) {
	e := New()
	e.Body = []byte("bytes-body")
	e.ContentType = "content-type"
	e.Trigger = TriggerInfo{Kind: "http", Name: "my-http-trigger"}
	e.Method = "GET"

	out := decodeRendered(t, e)
	if out["body"] != "Ynl0ZXMtYm9keQ==" {
		t.Errorf("expected base64 body, got %v", out["body"])
	}
	trigger, _ := out["trigger"].(map[string]any)
	if trigger["kind"] != "http" || trigger["name"] != "my-http-trigger" {
		t.Errorf("unexpected trigger %v", out["trigger"])
	}
	if out["last_in_batch"] != false {
		t.Errorf("expected last_in_batch false, got %v", out["last_in_batch"])
	}
	if out["offset"] != float64(0) {
		t.Errorf("expected offset 0, got %v", out["offset"])
	}
	if out["timestamp"] != "1970-01-01T00:00:00Z" {
		t.Errorf("unexpected timestamp %v", out["timestamp"])
	}
}

func TestToJSON_NonUTF8Body(t *testing.T) {
	e := New()
	e.Body = []byte{0x80, 'a', 'b', 'c'}

	out := decodeRendered(t, e)
	if out["body"] != "gGFiYw==" {
		t.Errorf("expected gGFiYw==, got %v", out["body"])
	}
}

func TestToJSON_StringBody(t *testing.T) {
	e := New()
	e.Body = "str-body"

	out := decodeRendered(t, e)
	if out["body"] != "str-body" {
		t.Errorf("expected str-body, got %v", out["body"])
	}
}

func TestToJSON_UnencodableValues(t *testing.T) {
	e := New()
	e.Fields["nan"] = math.NaN()
	e.Fields["inf"] = math.Inf(1)
	e.Fields["ch"] = make(chan int)
	e.Fields["fn"] = func() {}
	e.Fields["when"] = time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC)
	e.Headers["complex"] = complex(1, 2)

	self := map[string]any{}
	self["self"] = self
	e.Fields["cycle"] = self

	out := decodeRendered(t, e)
	fields := out["fields"].(map[string]any)
	if fields["nan"] != "NaN" {
		t.Errorf("expected NaN string, got %v", fields["nan"])
	}
	if fields["inf"] != "Infinity" {
		t.Errorf("expected Infinity string, got %v", fields["inf"])
	}
	if _, ok := fields["ch"].(string); !ok {
		t.Errorf("expected channel rendered as string, got %T", fields["ch"])
	}
	if _, ok := fields["fn"].(string); !ok {
		t.Errorf("expected func rendered as string, got %T", fields["fn"])
	}
	if fields["when"] != "2020-10-01T00:00:00Z" {
		t.Errorf("unexpected time rendering %v", fields["when"])
	}
	if out["headers"].(map[string]any)["complex"] != "(1+2i)" {
		t.Errorf("unexpected complex rendering %v", out["headers"])
	}
	if !strings.Contains(e.ToJSON(), "max depth exceeded") {
		t.Error("expected cyclic map to be cut off")
	}
}

func TestString_MatchesToJSON(t *testing.T) {
	e := New()
	e.ID = "abc"
	if e.String() != e.ToJSON() {
		t.Error("expected String to match ToJSON")
	}
}
