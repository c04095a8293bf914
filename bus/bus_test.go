package bus

import (
	"testing"
	"time"
)

func recvOne(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return Message{}
	}
}

func TestPublishDelivers(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(TopicCycleState)
	defer sub.Unsubscribe()

	b.Publish(TopicCycleState, "running")
	msg := recvOne(t, sub)
	if msg.Payload != "running" {
		t.Fatalf("payload = %v, want running", msg.Payload)
	}
}

func TestRetainedDeliveredOnSubscribe(t *testing.T) {
	b := New(4)
	b.Publish(TopicNetLink, "up")

	sub := b.Subscribe(TopicNetLink)
	defer sub.Unsubscribe()
	msg := recvOne(t, sub)
	if msg.Payload != "up" {
		t.Fatalf("retained payload = %v, want up", msg.Payload)
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	b := New(1)
	sub := b.Subscribe(TopicReading)
	defer sub.Unsubscribe()

	b.Publish(TopicReading, 1)
	b.Publish(TopicReading, 2)
	b.Publish(TopicReading, 3)

	msg := recvOne(t, sub)
	if msg.Payload != 3 {
		t.Fatalf("payload = %v, want latest value 3", msg.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(TopicCycleState)
	sub.Unsubscribe()

	if _, ok := <-sub.ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(TopicCycleState, "sleeping")
}
