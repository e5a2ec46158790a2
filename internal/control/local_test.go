package control

import (
	"context"
	"testing"

	"github.com/lsm/fnsdk/pkg/event"
	"github.com/lsm/fnsdk/pkg/offset"
)

type fakeAcker struct {
	topic     string
	partition int32
	offset    int64
	calls     int
}

func (f *fakeAcker) Ack(_ context.Context, topic string, partition int32, offset int64) error {
	f.topic, f.partition, f.offset = topic, partition, offset
	f.calls++
	return nil
}

func TestLocal_CommitsThroughTrigger(t *testing.T) {
	acker := &fakeAcker{}
	ch, err := NewLocal(acker)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if err := ch.Send(context.Background(), ackFor("orders", int64(3), int64(1042))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acker.calls != 1 || acker.topic != "orders" || acker.partition != 3 || acker.offset != 1042 {
		t.Errorf("unexpected ack %+v", acker)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestLocal_RejectsBadPosition(t *testing.T) {
	acker := &fakeAcker{}
	ch, _ := NewLocal(acker)
	if err := ch.Send(context.Background(), ackFor("orders", "p", int64(1))); err == nil {
		t.Fatal("expected error")
	}
	if acker.calls != 0 {
		t.Error("ack must not be called for an invalid position")
	}
}

func TestNewLocal_RequiresAcker(t *testing.T) {
	if _, err := NewLocal(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocal_PathOnlyEnvelopeAcksConsumedTopic(t *testing.T) {
	e := event.New()
	e.ShardID = int64(2)
	e.Offset = int64(5)

	acker := &fakeAcker{}
	ch, _ := NewLocal(acker)
	if err := ch.Send(context.Background(), offset.FromEvent(e).CompileExplicitAckMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acker.topic != "" || acker.partition != 2 || acker.offset != 5 {
		t.Errorf("unexpected ack %+v", acker)
	}
}
