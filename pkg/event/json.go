package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/bytedance/sonic"
)

// maxRenderDepth bounds recursion into nested values, which also stops
// self-referencing maps from looping forever.
const maxRenderDepth = 64

type renderedEvent struct {
	Body        any            `json:"body"`
	ContentType string         `json:"content_type"`
	Trigger     TriggerInfo    `json:"trigger"`
	Fields      map[string]any `json:"fields"`
	Headers     map[string]any `json:"headers"`
	ID          string         `json:"id"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	Timestamp   string         `json:"timestamp"`
	URL         string         `json:"url"`
	ShardID     any            `json:"shard_id"`
	NumShards   int64          `json:"num_shards"`
	Type        string         `json:"type"`
	TypeVersion string         `json:"type_version"`
	Version     string         `json:"version"`
	LastInBatch bool           `json:"last_in_batch"`
	Offset      any            `json:"offset"`
	Topic       string         `json:"topic"`
}

// ToJSON renders the event for logs and debugging. Byte bodies become base64
// text, the timestamp becomes RFC 3339 text, and any value that JSON cannot
// represent is rendered as its string form. It never fails.
func (e *Event) ToJSON() string {
	r := renderedEvent{
		Body:        render(e.Body, 0),
		ContentType: e.ContentType,
		Trigger:     e.Trigger,
		Fields:      renderMap(e.Fields, 0),
		Headers:     renderMap(e.Headers, 0),
		ID:          e.ID,
		Method:      e.Method,
		Path:        e.Path,
		Size:        e.Size,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		URL:         e.URL,
		ShardID:     render(e.ShardID, 0),
		NumShards:   e.NumShards,
		Type:        e.Type,
		TypeVersion: e.TypeVersion,
		Version:     e.Version,
		LastInBatch: e.LastInBatch,
		Offset:      render(e.Offset, 0),
		Topic:       e.Topic,
	}
	out, err := sonic.ConfigStd.MarshalToString(r)
	if err != nil {
		// render already replaced everything sonic rejects; this is a last resort
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return out
}

// String implements fmt.Stringer with the ToJSON rendering.
func (e *Event) String() string {
	return e.ToJSON()
}

func renderMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = render(v, depth+1)
	}
	return out
}

func render(v any, depth int) any {
	if depth > maxRenderDepth {
		return "<max depth exceeded>"
	}
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case float64:
		return renderFloat(t)
	case float32:
		return renderFloat(float64(t))
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case map[string]any:
		return renderMap(t, depth)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = render(item, depth+1)
		}
		return out
	case fmt.Stringer:
		if _, ok := v.(json.Marshaler); !ok {
			return t.String()
		}
	}
	return renderReflect(v, depth)
}

func renderFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func renderReflect(v any, depth int) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = render(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = render(rv.Index(i).Interface(), depth+1)
		}
		return out
	}
	// encoding/json detects pointer cycles, which sonic does not
	if b, err := json.Marshal(v); err == nil {
		return json.RawMessage(b)
	}
	return fmt.Sprint(v)
}
