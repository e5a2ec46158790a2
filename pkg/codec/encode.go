package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/lsm/fnsdk/pkg/event"
)

// ErrSingleEvent is returned by a non-batching encoder given zero or several events.
var ErrSingleEvent = errors.New("non-batch encoder takes exactly one event")

type writer struct {
	armor bool
	batch bool
	// textBytes writes byte bodies as text, for formats without a binary type.
	textBytes bool
	marshal   func(any) ([]byte, error)
}

func (w writer) Encode(events ...*event.Event) ([]byte, error) {
	if !w.batch {
		if len(events) != 1 {
			return nil, fmt.Errorf("%w: got %d", ErrSingleEvent, len(events))
		}
		return w.marshal(w.envelope(events[0]))
	}
	items := make([]any, len(events))
	for i, e := range events {
		items[i] = w.envelope(e)
	}
	return w.marshal(items)
}

func (w writer) envelope(e *event.Event) map[string]any {
	path := e.Path
	if path == "" {
		path = event.DefaultPath
	}
	offset := e.Offset
	if offset == nil {
		offset = int64(0)
	}
	m := map[string]any{
		"body":         w.body(e.Body),
		"content_type": e.ContentType,
		"trigger": map[string]any{
			"kind": e.Trigger.Kind,
			"name": e.Trigger.Name,
		},
		"fields":        nonNil(e.Fields),
		"headers":       nonNil(e.Headers),
		"id":            e.ID,
		"method":        e.Method,
		"path":          path,
		"size":          e.Size,
		"timestamp":     epochSeconds(e.Timestamp),
		"url":           e.URL,
		"shard_id":      e.ShardID,
		"num_shards":    e.NumShards,
		"type":          e.Type,
		"type_version":  e.TypeVersion,
		"version":       e.Version,
		"last_in_batch": e.LastInBatch,
		"offset":        offset,
	}
	if e.Topic != "" {
		m["topic"] = e.Topic
	}
	return m
}

func (w writer) body(b any) any {
	switch t := b.(type) {
	case []byte:
		if w.armor {
			return base64.StdEncoding.EncodeToString(t)
		}
		if w.textBytes {
			// JSON text cannot carry arbitrary bytes; invalid UTF-8 goes as base64.
			if !utf8.Valid(t) {
				return base64.StdEncoding.EncodeToString(t)
			}
			return string(t)
		}
		return t
	case string:
		if w.armor || (w.textBytes && !utf8.ValidString(t)) {
			return base64.StdEncoding.EncodeToString([]byte(t))
		}
		return t
	default:
		return b
	}
}

// epochSeconds is an integer when the timestamp has no sub-second part.
func epochSeconds(t time.Time) any {
	if t.IsZero() {
		return int64(0)
	}
	if t.Nanosecond() == 0 {
		return t.Unix()
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
