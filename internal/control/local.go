package control

import (
	"context"
	"fmt"

	"github.com/lsm/fnsdk/internal/source"
	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/offset"
)

// Local commits through the trigger running in this process.
type Local struct {
	acker source.Acknowledger
}

func NewLocal(acker source.Acknowledger) (*Local, error) {
	if acker == nil {
		return nil, fmt.Errorf("trigger does not support explicit acknowledgement")
	}
	return &Local{acker: acker}, nil
}

func (l *Local) Send(ctx context.Context, msg offset.AckMessage) error {
	topic, partition, off, err := Position(msg)
	if err != nil {
		return fmt.Errorf("local ack: %w", err)
	}
	// Envelopes without a topic or path carry the default path.
	if topic == event.DefaultPath {
		topic = ""
	}
	return l.acker.Ack(ctx, topic, partition, off)
}

func (l *Local) Close() error { return nil }
