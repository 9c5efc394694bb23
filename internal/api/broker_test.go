package api

import "testing"

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("p1")
	b.Publish("p1", SSEEvent{Type: "property.updated"})
	if evt := <-ch; evt.Type != "property.updated" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	b.Unsubscribe("p1", ch)
	// A publish after unsubscribe must neither panic nor deliver; the
	// channel is closed exactly once.
	b.Publish("p1", SSEEvent{Type: "property.deleted"})
	if _, ok := <-ch; ok {
		t.Fatal("event delivered after unsubscribe")
	}
}

func TestBrokerIsolatesProperties(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("p1")
	ch2 := b.Subscribe("p2")
	b.Publish("p1", SSEEvent{Type: "property.updated"})
	select {
	case evt := <-ch2:
		t.Fatalf("event crossed properties: %+v", evt)
	default:
	}
	if evt := <-ch1; evt.Type != "property.updated" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	b.Unsubscribe("p1", ch1)
	b.Unsubscribe("p2", ch2)
}
