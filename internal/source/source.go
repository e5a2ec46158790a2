// Package source defines how trigger transports hand wire messages to the
// processing session.
package source

import "context"

// Message is one wire message as delivered by a trigger. Stream metadata is
// zero for request/response triggers.
type Message struct {
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
}

// Reply is the session's answer to a message. Request/response triggers
// write it back; stream triggers drop it.
type Reply struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) (Reply, error)

// Source consumes messages from a trigger transport.
type Source interface {
	// Start delivers messages to h until ctx is cancelled.
	Start(ctx context.Context, h Handler) error
	Close() error
}

// Acknowledger commits a stream position on request. Stream sources
// configured for explicit acknowledgement implement it.
type Acknowledger interface {
	Ack(ctx context.Context, topic string, partition int32, offset int64) error
}
