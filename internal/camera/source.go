package camera

import (
	"context"
	"sync/atomic"

	"parkgate/internal/domain/gate"
)

// Source is a stable frame-producing handle over one camera backend. How the
// stream was discovered and authenticated is the collaborator's concern.
type Source interface {
	ID() string
	// Next blocks until a frame is available, ctx is cancelled, or the
	// backend fails. Implementations backed by a blocking read may only
	// observe cancellation between frames, so teardown can lag by up to
	// one read on a stalled stream.
	Next(ctx context.Context) (gate.Frame, error)
	Close() error
}

// FrameQueue decouples capture from recognition with a bounded buffer. When
// recognition lags behind the camera, the oldest frame is dropped so the
// decision path stays near real time.
type FrameQueue struct {
	ch      chan gate.Frame
	dropped atomic.Int64
}

func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan gate.Frame, capacity)}
}

// Push enqueues a frame, evicting the oldest queued frame if full. Never
// blocks.
func (q *FrameQueue) Push(f gate.Frame) {
	for {
		select {
		case q.ch <- f:
			return
		default:
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}
}

// Frames exposes the consumer side of the queue.
func (q *FrameQueue) Frames() <-chan gate.Frame {
	return q.ch
}

// Close ends the stream for consumers. Push must not be called afterwards.
func (q *FrameQueue) Close() {
	close(q.ch)
}

// Dropped reports how many frames were evicted under backpressure.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}
