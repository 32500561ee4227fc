// Package mux runs the two directions of a session, client-to-model and
// model-to-client, over independent bounded queues so that neither direction
// can block the other. Queues are bounded by frame count, not bytes, which
// caps memory regardless of frame size.
package mux

import (
	"context"
	"sync"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// DefaultQueueDepth is the per-direction capacity in events.
const DefaultQueueDepth = 64

// Mux is the duplex stream multiplexer for one session. Send enqueues for
// outbound delivery and blocks the producer when the queue is at capacity
// instead of dropping audio. Close cancels every blocked call promptly.
type Mux struct {
	outbound chan entities.StreamEvent
	inbound  chan entities.StreamEvent

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a multiplexer with the given per-direction queue depth.
func New(depth int) *Mux {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Mux{
		outbound: make(chan entities.StreamEvent, depth),
		inbound:  make(chan entities.StreamEvent, depth),
		done:     make(chan struct{}),
	}
}

// Send enqueues an event for outbound delivery to the remote model. It blocks
// while the outbound queue is full (throttling the microphone producer) and
// unblocks exactly when capacity frees up, the context is cancelled, or the
// session closes.
func (m *Mux) Send(ctx context.Context, ev entities.StreamEvent) error {
	select {
	case <-m.done:
		return entities.ErrSessionClosed
	default:
	}

	select {
	case m.outbound <- ev:
		return nil
	case <-m.done:
		return entities.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextOutbound dequeues the next event bound for the remote model. The
// transport writer loop is its only consumer.
func (m *Mux) NextOutbound(ctx context.Context) (entities.StreamEvent, error) {
	select {
	case ev := <-m.outbound:
		return ev, nil
	case <-m.done:
		return entities.StreamEvent{}, entities.ErrSessionClosed
	case <-ctx.Done():
		return entities.StreamEvent{}, ctx.Err()
	}
}

// Deliver enqueues an inbound event received from the remote model. Like
// Send, it exerts backpressure on the transport reader when the consumer
// falls behind.
func (m *Mux) Deliver(ctx context.Context, ev entities.StreamEvent) error {
	select {
	case <-m.done:
		return entities.ErrSessionClosed
	default:
	}

	select {
	case m.inbound <- ev:
		return nil
	case <-m.done:
		return entities.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive produces the next inbound event, blocking until one is available,
// the context is cancelled, or the session closes. Events already queued when
// Close is called are still drained before ErrSessionClosed is reported.
func (m *Mux) Receive(ctx context.Context) (entities.StreamEvent, error) {
	select {
	case ev := <-m.inbound:
		return ev, nil
	default:
	}

	select {
	case ev := <-m.inbound:
		return ev, nil
	case <-m.done:
		// Drain anything that raced with close.
		select {
		case ev := <-m.inbound:
			return ev, nil
		default:
			return entities.StreamEvent{}, entities.ErrSessionClosed
		}
	case <-ctx.Done():
		return entities.StreamEvent{}, ctx.Err()
	}
}

// Close cancels all pending Send and Receive calls. Safe to call repeatedly.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// Closed reports whether the multiplexer has been closed.
func (m *Mux) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Drained reports whether both directions are empty. The state machine uses
// it to complete the Closing → Closed transition.
func (m *Mux) Drained() bool {
	return len(m.outbound) == 0 && len(m.inbound) == 0
}

// OutboundDepth returns the number of events queued toward the model.
func (m *Mux) OutboundDepth() int {
	return len(m.outbound)
}

// InboundDepth returns the number of events queued toward the client.
func (m *Mux) InboundDepth() int {
	return len(m.inbound)
}
