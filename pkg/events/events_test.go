package events

import (
	"testing"
	"time"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.PublishAllocation(EventAllocationClaimed, "alloc-1", "task-1", map[string]string{"node_id": "node-1"})

	select {
	case ev := <-sub:
		if ev.Type != EventAllocationClaimed {
			t.Fatalf("expected %s, got %s", EventAllocationClaimed, ev.Type)
		}
		if ev.Metadata["allocation_id"] != "alloc-1" || ev.Metadata["node_id"] != "node-1" {
			t.Fatalf("unexpected metadata: %+v", ev.Metadata)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestFullSubscriberBufferDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 200; i++ {
		b.PublishNode(EventNodeDown, "node-1")
	}

	done := make(chan struct{})
	go func() {
		b.PublishNode(EventNodeUp, "node-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}
}
