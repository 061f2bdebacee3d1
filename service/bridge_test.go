package service

import (
	"sync"
	"testing"
)

func TestBridgeDrainOrder(t *testing.T) {
	b := NewEventBridge()
	b.PublishStatus("first")
	b.PublishLog("INFO", "second")
	b.PublishInstancesChanged()

	events := b.Drain()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != EventStatusText || events[0].Message != "first" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != EventLog || events[1].Level != "INFO" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[2].Kind != EventInstancesChanged {
		t.Errorf("unexpected third event: %+v", events[2])
	}
	if events[0].At.IsZero() {
		t.Error("expected publish timestamp to be set")
	}

	if got := b.Drain(); got != nil {
		t.Errorf("second drain should be empty, got %d events", len(got))
	}
}

func TestBridgeConcurrentPublish(t *testing.T) {
	b := NewEventBridge()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.PublishLog("DEBUG", "msg")
			}
		}()
	}
	wg.Wait()

	if b.Len() != 1000 {
		t.Fatalf("expected 1000 events, got %d", b.Len())
	}
	if len(b.Drain()) != 1000 {
		t.Fatal("drain lost events")
	}
}
