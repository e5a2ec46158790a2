package control

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/lsm/fnsdk/internal/correlation"
	"github.com/lsm/fnsdk/pkg/offset"
)

// Publisher is the interface for publishing messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// Kafka publishes ack messages as JSON to a control topic, keyed by the
// acknowledged topic so acks for one stream stay ordered.
type Kafka struct {
	pub   Publisher
	topic string
}

func NewKafka(pub Publisher, topic string) (*Kafka, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("control topic is required")
	}
	return &Kafka{pub: pub, topic: topic}, nil
}

func (k *Kafka) Send(ctx context.Context, msg offset.AckMessage) error {
	value, err := sonic.ConfigStd.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	headers := correlation.InjectTraceContext(ctx, map[string]string{"content-type": "application/json"})
	return k.pub.Publish(ctx, k.topic, []byte(msg.Attributes.Topic), value, headers)
}

func (k *Kafka) Close() error {
	return k.pub.Close()
}
