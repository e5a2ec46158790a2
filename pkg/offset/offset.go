// Package offset identifies a stream position for explicit acknowledgement.
package offset

import "github.com/lsm/fnsdk/pkg/event"

// AckKind is the control message kind for stream acknowledgements.
const AckKind = "streamMessageAck"

// QualifiedOffset is a position in a partitioned stream.
type QualifiedOffset struct {
	Topic     string
	Partition any
	Offset    any
}

// FromEvent derives the position of a stream event. Older hosts carry the topic
// in the event path, so the path is used when no topic is set.
func FromEvent(e *event.Event) QualifiedOffset {
	topic := e.Topic
	if topic == "" {
		topic = e.Path
	}
	return QualifiedOffset{
		Topic:     topic,
		Partition: e.ShardID,
		Offset:    e.Offset,
	}
}

// AckAttributes locate the acknowledged record.
type AckAttributes struct {
	Topic     string `json:"topic"`
	Partition any    `json:"partition"`
	Offset    any    `json:"offset"`
}

// AckMessage is the control message sent to commit an offset explicitly.
type AckMessage struct {
	Kind       string        `json:"kind"`
	Attributes AckAttributes `json:"attributes"`
}

// CompileExplicitAckMessage builds the acknowledgement for q.
func (q QualifiedOffset) CompileExplicitAckMessage() AckMessage {
	return AckMessage{
		Kind: AckKind,
		Attributes: AckAttributes{
			Topic:     q.Topic,
			Partition: q.Partition,
			Offset:    q.Offset,
		},
	}
}

// Map returns the message as generic data, for encoders that take maps.
func (m AckMessage) Map() map[string]any {
	return map[string]any{
		"kind": m.Kind,
		"attributes": map[string]any{
			"topic":     m.Attributes.Topic,
			"partition": m.Attributes.Partition,
			"offset":    m.Attributes.Offset,
		},
	}
}
