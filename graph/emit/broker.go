package emit

import "sync"

// subscriberBuffer is the channel capacity handed to each subscriber.
// Sized so a subscriber reading at any reasonable pace never drops, while
// a stalled one cannot block a run fiber.
const subscriberBuffer = 64

// Broker implements Emitter by fanning events out to live subscribers,
// keyed by run ID.
//
// Delivery guarantees:
//   - Events arrive in emit order (the executor emits in checkpoint order,
//     so subscribers observe seq values in increasing order).
//   - Sends never block the emitting fiber: a subscriber whose buffer is
//     full misses events rather than stalling the run.
//   - After a terminal event (completed or failed) the subscriber's channel
//     is closed, so a range loop over it ends naturally.
//
// Subscribing to a run that never emits again yields a channel that stays
// open; callers combine the receive with their own context if they need a
// bound.
type Broker struct {
	mu   sync.Mutex
	subs map[string][]chan Event // runID -> subscriber channels
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Subscribe registers interest in a run's events and returns the channel
// they will arrive on. Multiple subscribers per run are independent; each
// gets every event from the moment it subscribed.
func (b *Broker) Subscribe(runID string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], ch)
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a previously returned channel and closes it. Safe to
// call with a channel the broker has already closed on a terminal event.
func (b *Broker) Unsubscribe(runID string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[runID]
	for i, sub := range subs {
		if sub == ch {
			b.subs[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}

// Emit delivers the event to every subscriber of its run without blocking.
// On a terminal event all of the run's subscriber channels are closed and
// forgotten.
func (b *Broker) Emit(event Event) {
	b.mu.Lock()
	subs := b.subs[event.RunID]
	if event.Terminal() {
		delete(b.subs, event.RunID)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop rather than stall the run.
		}
	}

	if event.Terminal() {
		for _, ch := range subs {
			close(ch)
		}
	}
}
