package kafka

import (
	"context"
	"errors"
	"testing"
)

func testPool(created *[]*fakeProducer) *Pool {
	p := NewPool()
	p.newClient = func(*ClusterConfig) (producer, error) {
		fp := &fakeProducer{}
		*created = append(*created, fp)
		return fp, nil
	}
	return p
}

func TestPool_SharesClientPerCluster(t *testing.T) {
	var created []*fakeProducer
	pool := testPool(&created)
	cluster := &ClusterConfig{Brokers: []string{"b1:9092", "b2:9092"}}

	dead, err := pool.Get(cluster)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	acks, err := pool.Get(&ClusterConfig{Brokers: []string{"b1:9092", "b2:9092"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(created) != 1 || pool.Len() != 1 {
		t.Fatalf("expected one shared client, created %d", len(created))
	}

	if err := dead.Publish(context.Background(), "dlq", nil, []byte("a"), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := acks.Publish(context.Background(), "acks", nil, []byte("b"), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(created[0].records) != 2 {
		t.Errorf("expected both records on the shared client, got %d", len(created[0].records))
	}

	_ = dead.Close()
	if created[0].closed {
		t.Fatal("closing a pooled publisher must not close the shared client")
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !created[0].closed || pool.Len() != 0 {
		t.Error("expected pool close to release the client")
	}
}

func TestPool_SeparatesClusters(t *testing.T) {
	var created []*fakeProducer
	pool := testPool(&created)

	tests := []*ClusterConfig{
		{Brokers: []string{"a:9092"}},
		{Brokers: []string{"b:9092"}},
		{Brokers: []string{"a:9092"}, Auth: AuthConfig{Mechanism: "PLAIN", Username: "svc"}},
		{Brokers: []string{"a:9092"}, ClientID: "other"},
	}
	for _, cfg := range tests {
		if _, err := pool.Get(cfg); err != nil {
			t.Fatalf("get %v: %v", cfg.Brokers, err)
		}
	}
	if len(created) != len(tests) {
		t.Errorf("expected %d clients, got %d", len(tests), len(created))
	}
}

func TestPool_Errors(t *testing.T) {
	pool := NewPool()
	if _, err := pool.Get(nil); err == nil {
		t.Error("expected error for nil cluster")
	}

	dial := errors.New("no brokers")
	pool.newClient = func(*ClusterConfig) (producer, error) { return nil, dial }
	if _, err := pool.Get(&ClusterConfig{Brokers: []string{"a:9092"}}); !errors.Is(err, dial) {
		t.Errorf("expected wrapped client error, got %v", err)
	}
	if pool.Len() != 0 {
		t.Error("failed client must not be pooled")
	}
}
