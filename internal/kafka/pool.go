package kafka

import (
	"fmt"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Pool shares one producing client per cluster among the publishers that
// write to it. Pooled publishers do not own their client; Close on the pool
// releases every client.
type Pool struct {
	mu        sync.Mutex
	clients   map[string]producer
	newClient func(*ClusterConfig) (producer, error)
}

func NewPool() *Pool {
	return &Pool{
		clients:   make(map[string]producer),
		newClient: newProducer,
	}
}

// Get returns a publisher on the shared client for cfg, creating the client
// on first use.
func (p *Pool) Get(cfg *ClusterConfig) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	key := poolKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[key]; ok {
		return &Publisher{client: client, shared: true}, nil
	}
	client, err := p.newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher client: %w", err)
	}
	p.clients[key] = client
	return &Publisher{client: client, shared: true}, nil
}

// Len reports how many clients the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, client := range p.clients {
		client.Close()
		delete(p.clients, key)
	}
	return nil
}

// poolKey separates clusters by brokers and by the identity used to reach them.
func poolKey(cfg *ClusterConfig) string {
	return strings.Join(cfg.Brokers, ",") + "|" + cfg.ClientID + "|" + cfg.Auth.Mechanism + ":" + cfg.Auth.Username
}

func newProducer(cfg *ClusterConfig) (producer, error) {
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	return kgo.NewClient(opts...)
}
