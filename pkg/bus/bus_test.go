package bus

import (
	"encoding/json"
	"testing"
)

func TestPublishDeliversToTagSubscribersOnly(t *testing.T) {
	b := New()

	var jobs, returns int
	b.Subscribe("BULK_JOB_STATUS", func(Event) { jobs++ })
	b.Subscribe("RETURN_UPDATED", func(Event) { returns++ })

	b.Publish(Event{Tag: "BULK_JOB_STATUS", Payload: json.RawMessage(`{}`)})
	b.Publish(Event{Tag: "BULK_JOB_STATUS", Payload: json.RawMessage(`{}`)})
	b.Publish(Event{Tag: "RETURN_UPDATED", Payload: json.RawMessage(`{}`)})

	if jobs != 2 {
		t.Errorf("expected 2 job events, got %d", jobs)
	}
	if returns != 1 {
		t.Errorf("expected 1 return event, got %d", returns)
	}
}

func TestPublishOrderAndUnsubscribe(t *testing.T) {
	b := New()

	var order []string
	unsubA := b.Subscribe("t", func(Event) { order = append(order, "a") })
	b.Subscribe("t", func(Event) { order = append(order, "b") })

	b.Publish(Event{Tag: "t"})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected delivery order: %v", order)
	}

	unsubA()
	order = nil
	b.Publish(Event{Tag: "t"})
	if len(order) != 1 || order[0] != "b" {
		t.Errorf("expected only b after unsubscribe, got %v", order)
	}
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	b := New()
	// Must not panic or block.
	b.Publish(Event{Tag: "nobody-home", Payload: json.RawMessage(`{"x":1}`)})
}
