package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lsm/fnsdk/pkg/event"
)

// parser is the format and key-typing strategy of a codec.
type parser interface {
	// unmarshal parses wire bytes into a generic value tree.
	unmarshal(msg []byte) (any, error)
	// elements parses a batch array. Each element is parsed on its own so a
	// malformed element fails its slot, not the whole message.
	elements(msg []byte) ([]any, []error, error)
	// envelope views a parsed map through the strategy's key type.
	envelope(v any) (envelope, bool)
	// materialize converts strategy-specific maps into map[string]any.
	materialize(v any) any
}

type envelope interface {
	lookup(key string) (any, bool)
}

// textEnvelope is a map whose keys were decoded as text.
type textEnvelope map[string]any

func (m textEnvelope) lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

type rawPair struct {
	key   []byte
	value any
}

// rawEnvelope is a map whose keys are byte strings, kept in wire order.
type rawEnvelope []rawPair

func (r rawEnvelope) lookup(key string) (any, bool) {
	for _, p := range r {
		if string(p.key) == key {
			return p.value, true
		}
	}
	return nil, false
}

type reader struct {
	parse parser
	body  bodyFunc
	diag  event.Diagnostics
}

func (r reader) event(v any, index int) (*event.Event, error) {
	env, ok := r.parse.envelope(v)
	if !ok {
		return nil, &EnvelopeError{Index: index, Err: fmt.Errorf("envelope must be a map, got %s", typeName(v))}
	}
	f := &fieldReader{env: env, parse: r.parse, index: index}

	e := &event.Event{
		ContentType: f.str("content_type"),
		Trigger:     f.trigger("trigger"),
		Fields:      f.mapping("fields"),
		Headers:     f.mapping("headers"),
		ID:          f.str("id"),
		Method:      f.str("method"),
		Path:        f.str("path"),
		Size:        f.integer("size"),
		Timestamp:   f.timestamp("timestamp"),
		URL:         f.str("url"),
		ShardID:     f.raw("shard_id"),
		NumShards:   f.integer("num_shards"),
		Type:        f.str("type"),
		TypeVersion: f.str("type_version"),
		Version:     f.str("version"),
		LastInBatch: f.optionalBool("last_in_batch"),
		Offset:      f.optionalInteger("offset"),
		Topic:       f.optionalStr("topic"),
	}
	rawBody := f.raw("body")
	if f.err != nil {
		return nil, f.err
	}

	if e.Path == "" {
		e.Path = event.DefaultPath
	}
	e.Body = normalize(r.body(rawBody, e.ContentType, r.diag))
	return e, nil
}

// fieldReader extracts typed envelope fields, keeping the first failure.
type fieldReader struct {
	env    envelope
	parse  parser
	index  int
	prefix string
	err    error
}

func (f *fieldReader) fail(key string, err error) {
	if f.err == nil {
		f.err = &EnvelopeError{Index: f.index, Field: f.prefix + key, Err: err}
	}
}

func (f *fieldReader) value(key string) (any, bool) {
	v, ok := f.env.lookup(key)
	if !ok {
		f.fail(key, ErrMissingField)
	}
	return v, ok
}

func (f *fieldReader) raw(key string) any {
	v, ok := f.value(key)
	if !ok {
		return nil
	}
	return normalize(f.parse.materialize(v))
}

func (f *fieldReader) str(key string) string {
	v, ok := f.value(key)
	if !ok {
		return ""
	}
	s, ok := asString(v)
	if !ok {
		f.fail(key, fmt.Errorf("expected string, got %s", typeName(v)))
	}
	return s
}

func (f *fieldReader) optionalStr(key string) string {
	v, ok := f.env.lookup(key)
	if !ok {
		return ""
	}
	s, ok := asString(v)
	if !ok {
		f.fail(key, fmt.Errorf("expected string, got %s", typeName(v)))
	}
	return s
}

func (f *fieldReader) integer(key string) int64 {
	v, ok := f.value(key)
	if !ok {
		return 0
	}
	n, ok := asInt(v)
	if !ok {
		f.fail(key, fmt.Errorf("expected integer, got %s", typeName(v)))
	}
	return n
}

func (f *fieldReader) optionalInteger(key string) any {
	v, ok := f.env.lookup(key)
	if !ok || v == nil {
		return int64(0)
	}
	n, ok := asInt(v)
	if !ok {
		f.fail(key, fmt.Errorf("expected integer, got %s", typeName(v)))
	}
	return n
}

func (f *fieldReader) optionalBool(key string) bool {
	v, ok := f.env.lookup(key)
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		f.fail(key, fmt.Errorf("expected bool, got %s", typeName(v)))
	}
	return b
}

func (f *fieldReader) mapping(key string) map[string]any {
	v, ok := f.value(key)
	if !ok || v == nil {
		return map[string]any{}
	}
	m, ok := f.parse.materialize(v).(map[string]any)
	if !ok {
		f.fail(key, fmt.Errorf("expected map, got %s", typeName(v)))
		return map[string]any{}
	}
	return normalize(m).(map[string]any)
}

func (f *fieldReader) timestamp(key string) time.Time {
	v, ok := f.value(key)
	if !ok {
		return time.Time{}
	}
	t, err := asTime(v)
	if err != nil {
		f.fail(key, err)
	}
	return t
}

func (f *fieldReader) trigger(key string) event.TriggerInfo {
	v, ok := f.value(key)
	if !ok {
		return event.TriggerInfo{}
	}
	env, ok := f.parse.envelope(v)
	if !ok {
		f.fail(key, fmt.Errorf("expected map, got %s", typeName(v)))
		return event.TriggerInfo{}
	}
	sub := &fieldReader{env: env, parse: f.parse, index: f.index, prefix: f.prefix + key + "."}
	info := event.TriggerInfo{
		Kind: sub.str("kind"),
		Name: sub.str("name"),
	}
	if sub.err != nil && f.err == nil {
		f.err = sub.err
	}
	return info
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return asInt(uint64(n))
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return asInt(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return asInt(f)
	default:
		return 0, false
	}
}

// asTime accepts epoch seconds (integer or fractional) or RFC 3339 text, the
// latter being what Event.ToJSON renders.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Unix(0, 0).UTC(), nil
	case string:
		return parseTimeText(t)
	case []byte:
		return parseTimeText(string(t))
	case float64:
		return fromFloatSeconds(t), nil
	case float32:
		return fromFloatSeconds(float64(t)), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return time.Unix(i, 0).UTC(), nil
		}
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch seconds %q", t)
		}
		return fromFloatSeconds(f), nil
	}
	if n, ok := asInt(v); ok {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected epoch seconds, got %s", typeName(v))
}

func parseTimeText(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func fromFloatSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// normalize folds numeric representations so that a value decoded from any
// format compares equal: integers become int64 and floats become float64.
func normalize(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, item := range n {
			n[k] = normalize(item)
		}
		return n
	case []any:
		for i, item := range n {
			n[i] = normalize(item)
		}
		return n
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		if i, ok := asInt(n); ok {
			return i
		}
		return v
	default:
		return v
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
