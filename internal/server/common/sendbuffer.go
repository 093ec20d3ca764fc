// Package common holds pieces shared by the HTTP and websocket servers.
package common

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrBufferFull means a frame was dropped because the client is too far behind.
	ErrBufferFull = errors.New("send buffer full")

	// ErrClosed is returned once the buffer has been closed.
	ErrClosed = errors.New("closed")
)

// ReservedSlots is headroom above capacity that only reserved frames use.
const ReservedSlots = 16

// Frame is one serialized event waiting to be written.
type Frame struct {
	Data []byte
	// Key groups frames where only the latest matters, such as the status
	// snapshot of a room. Empty means the frame is always delivered in order.
	Key string
	// Reserved frames may use the ReservedSlots headroom, so a session's
	// final event still fits behind a full queue of its output.
	Reserved bool
}

// SendBuffer is a bounded per-client outbound queue. A keyed frame replaces
// a queued frame with the same key instead of growing the queue; when the
// queue is full the oldest keyed frame is evicted first and unkeyed frames
// are only refused as a last resort. PushWait never refuses: it waits for
// the writer to drain.
type SendBuffer struct {
	id       string
	capacity int

	mu      sync.Mutex
	queue   []Frame
	closed  bool
	dropped int

	ready chan struct{}
	space chan struct{}
	done  chan struct{}
}

// NewSendBuffer creates a buffer holding at most capacity frames.
func NewSendBuffer(id string, capacity int) *SendBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SendBuffer{
		id:       id,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push queues f, or drops it with ErrBufferFull when there is no room.
func (b *SendBuffer) Push(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.pushLocked(f)
	if err == ErrBufferFull {
		b.dropped++
		log.Warn().Str("client_id", b.id).Int("dropped", b.dropped).Msg("send buffer full, dropping frame")
	}
	return err
}

// PushWait queues f, blocking while the queue is full until Drain makes
// room or the buffer is closed.
func (b *SendBuffer) PushWait(f Frame) error {
	for {
		b.mu.Lock()
		err := b.pushLocked(f)
		b.mu.Unlock()
		if err != ErrBufferFull {
			return err
		}

		select {
		case <-b.space:
		case <-b.done:
			return ErrClosed
		}
	}
}

func (b *SendBuffer) pushLocked(f Frame) error {
	if b.closed {
		return ErrClosed
	}

	if f.Key != "" {
		for i := range b.queue {
			if b.queue[i].Key == f.Key {
				b.queue[i] = f
				return nil
			}
		}
	}

	limit := b.capacity
	if f.Reserved {
		limit += ReservedSlots
	}
	if len(b.queue) >= limit && !b.evictKeyedLocked() {
		return ErrBufferFull
	}

	b.queue = append(b.queue, f)
	select {
	case b.ready <- struct{}{}:
	default:
	}
	return nil
}

// evictKeyedLocked drops the oldest keyed frame; a later snapshot with the
// same key will be sent anyway.
func (b *SendBuffer) evictKeyedLocked() bool {
	for i := range b.queue {
		if b.queue[i].Key != "" {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.dropped++
			return true
		}
	}
	return false
}

// Drain removes and returns every queued frame in order.
func (b *SendBuffer) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	if len(out) > 0 {
		select {
		case b.space <- struct{}{}:
		default:
		}
	}
	return out
}

// Ready receives a signal after a push. One signal may cover several frames.
func (b *SendBuffer) Ready() <-chan struct{} {
	return b.ready
}

// Len returns the number of queued frames.
func (b *SendBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped returns how many frames were lost to back pressure.
func (b *SendBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes the buffer. Queued frames are discarded.
func (b *SendBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	close(b.done)
}

// Done is closed once Close has been called.
func (b *SendBuffer) Done() <-chan struct{} {
	return b.done
}

// IsClosed reports whether Close has been called.
func (b *SendBuffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
