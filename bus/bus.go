// Package bus is a small retained-value status bus. Services publish their
// latest state under a fixed topic string; subscribers get the retained value
// on subscribe and updates afterwards.
//
// Delivery is lossy by design: when a subscriber queue is full the oldest
// message is dropped. Only status flows through here; the sample handoff
// between the sensor and display tasks uses a dedicated bounded channel with
// blocking semantics and must never be routed over this bus.
package bus

import "sync"

// Topics used across the firmware.
const (
	TopicCycleState = "cycle/state"
	TopicReading    = "env/reading"
	TopicNetLink    = "net/link"
)

type Message struct {
	Topic   string
	Payload any
}

type Subscription struct {
	topic string
	ch    chan Message
	bus   *Bus
}

func (s *Subscription) Topic() string            { return s.topic }
func (s *Subscription) Channel() <-chan Message  { return s.ch }
func (s *Subscription) Unsubscribe()             { s.bus.unsubscribe(s) }

type Bus struct {
	mu       sync.Mutex
	qLen     int
	subs     map[string][]*Subscription
	retained map[string]Message
}

// New creates a bus with the given subscription queue length.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 4 // safe default
	}
	return &Bus{
		qLen:     queueLen,
		subs:     map[string][]*Subscription{},
		retained: map[string]Message{},
	}
}

// Publish stores payload as the retained value for topic and delivers it to
// all current subscribers.
func (b *Bus) Publish(topic string, payload any) {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.retained[topic] = msg
	for _, sub := range b.subs[topic] {
		deliver(sub.ch, msg)
	}
}

// Subscribe registers a subscriber for topic. If a retained value exists it
// is queued immediately.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan Message, b.qLen),
		bus:   b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[topic] = append(b.subs[topic], sub)
	if msg, ok := b.retained[topic]; ok {
		deliver(sub.ch, msg)
	}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// deliver enqueues without blocking, dropping the oldest entry when full.
func deliver(ch chan Message, msg Message) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
	}
}
