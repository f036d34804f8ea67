package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("dialog.")
	defer b.Unsubscribe(sub)

	b.Publish(TopicDialogSubmitted, DialogSubmittedEvent{ID: "d1", Workspace: "/proj"})

	select {
	case ev := <-sub.Ch():
		if ev.Topic != TopicDialogSubmitted {
			t.Fatalf("topic = %q, want %q", ev.Topic, TopicDialogSubmitted)
		}
		payload, ok := ev.Payload.(DialogSubmittedEvent)
		if !ok {
			t.Fatalf("payload type = %T", ev.Payload)
		}
		if payload.ID != "d1" || payload.Workspace != "/proj" {
			t.Fatalf("payload = %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	dialogSub := b.Subscribe("dialog.")
	rpcSub := b.Subscribe("rpc.")
	defer b.Unsubscribe(dialogSub)
	defer b.Unsubscribe(rpcSub)

	b.Publish(TopicRPCResponse, RPCResponseEvent{Body: []byte("{}")})

	select {
	case ev := <-rpcSub.Ch():
		if ev.Topic != TopicRPCResponse {
			t.Fatalf("topic = %q", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("rpc subscriber missed event")
	}

	select {
	case ev := <-dialogSub.Ch():
		t.Fatalf("dialog subscriber received %q", ev.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyPrefixMatchesAll(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	b.Publish(TopicDialogSubmitted, nil)
	b.Publish(TopicRPCResponse, nil)

	for i := 0; i < 2; i++ {
		select {
		case <-sub.Ch():
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestSlowConsumerDoesNotBlockPublish(t *testing.T) {
	b := New()
	sub := b.Subscribe("dialog.")
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer without draining; Publish must not block.
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(TopicDialogSubmitted, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("dialog.")
	b.Unsubscribe(sub)

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("subscriber count = %d, want 0", n)
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
}
