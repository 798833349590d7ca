// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format

// DefaultBusCapacity is the bus buffer size used when none is given.
const DefaultBusCapacity = 256

// Bus is a multi-producer, single-consumer message channel between the
// orchestrator's background tasks and an observer.
//
// Sends never block the producer: when the buffer is full the message is
// dropped, except a ProgressMsg carrying Completed, which is delivered with
// a blocking send as a last resort. Per-producer ordering is preserved.
type Bus struct {
	ch    chan Msg
	waker func()
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithWaker installs a hook invoked after every accepted send.
//
// View layers use it to wake their event loop.
func WithWaker(waker func()) BusOption {
	return func(b *Bus) {
		b.waker = waker
	}
}

// NewBus creates a bus with the given buffer capacity; zero or negative
// selects DefaultBusCapacity.
func NewBus(capacity int, opts ...BusOption) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}

	b := &Bus{
		ch: make(chan Msg, capacity),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Emit delivers a message to the consumer without blocking.
//
// Non-terminal messages are dropped when the buffer is full; a terminal
// Completed is never dropped.
func (b *Bus) Emit(m Msg) {
	if isTerminal(m) {
		b.ch <- m

		b.wake()

		return
	}

	select {
	case b.ch <- m:
		b.wake()
	default:
	}
}

// Receive returns the consumer side of the bus.
func (b *Bus) Receive() <-chan Msg {
	return b.ch
}

func (b *Bus) wake() {
	if b.waker != nil {
		b.waker()
	}
}

func isTerminal(m Msg) bool {
	p, ok := m.(ProgressMsg)
	if !ok {
		return false
	}

	_, ok = p.Event.(Completed)

	return ok
}
