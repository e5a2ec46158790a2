package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the slice of *kgo.Client that Publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher writes records synchronously. It serves dead-lettering and the
// Kafka control channel.
type Publisher struct {
	client producer
	// shared publishers come from a Pool, which owns the client.
	shared bool
}

func NewPublisher(cluster *ClusterConfig) (*Publisher, error) {
	if cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	client, err := newProducer(cluster)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher client: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Publish sends one record and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

// Close releases the client unless it belongs to a Pool.
func (p *Publisher) Close() error {
	if !p.shared {
		p.client.Close()
	}
	return nil
}
