// Package event holds the canonical in-memory event handed to function handlers,
// together with the body decoding rules shared by every wire codec.
package event

import (
	"sort"
	"strings"
	"time"
)

// DefaultPath is the path assigned to events whose producer did not set one.
const DefaultPath = "/"

// ContentTypeJSON is the only content type that triggers structured body decoding.
const ContentTypeJSON = "application/json"

// TriggerInfo identifies the input channel that produced an event.
type TriggerInfo struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Event is the unit of work delivered to a handler.
//
// Body holds exactly one representation: nil, raw bytes ([]byte), text (string)
// or a decoded JSON value (map[string]any, []any, json.Number, bool, ...).
type Event struct {
	ID          string
	Body        any
	ContentType string
	Trigger     TriggerInfo
	Fields      map[string]any
	Headers     map[string]any
	Method      string
	Path        string
	URL         string
	Size        int64
	Timestamp   time.Time
	ShardID     any
	NumShards   int64
	Type        string
	TypeVersion string
	Version     string
	LastInBatch bool
	Offset      any

	// Topic takes precedence over Path when addressing acknowledgments.
	Topic string
}

// New returns an event with every field at its documented default.
func New() *Event {
	return &Event{
		Fields:    map[string]any{},
		Headers:   map[string]any{},
		Path:      DefaultPath,
		Timestamp: time.Unix(0, 0).UTC(),
		Offset:    int64(0),
	}
}

// GetHeader looks up a header ignoring key case. When several keys fold to the
// same name, the first one in lexical order wins.
func (e *Event) GetHeader(name string) (any, bool) {
	if v, ok := e.Headers[name]; ok {
		return v, true
	}
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return e.Headers[keys[0]], true
}

// HeaderString is GetHeader for callers that only care about textual values.
// Byte-string values are converted; anything else reports false.
func (e *Event) HeaderString(name string) (string, bool) {
	v, ok := e.GetHeader(name)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

// BodyBytes returns the body as bytes when it is raw or textual.
func (e *Event) BodyBytes() ([]byte, bool) {
	switch b := e.Body.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	default:
		return nil, false
	}
}
