package services

import (
	"sync"
	"time"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// DefaultPendingCap bounds each user's queue. The buffer is
// best-effort, not a durable log; collaborators needing durability
// persist independently (notification records).
const DefaultPendingCap = 256

// PendingBuffer holds per-user FIFO queues of events produced while the
// user had no live connection, plus the startup queue of dispatches
// requested before the broadcast transport was ready. Everything here
// is lost on process restart.
type PendingBuffer struct {
	mu          sync.Mutex
	queues      map[string][]domain.PendingEvent
	startup     []func()
	startupDone bool
	cap         int
}

func NewPendingBuffer(capacity int) *PendingBuffer {
	if capacity <= 0 {
		capacity = DefaultPendingCap
	}
	return &PendingBuffer{
		queues: make(map[string][]domain.PendingEvent),
		cap:    capacity,
	}
}

// Enqueue appends to the user's queue. When the queue is full the
// oldest event is discarded to admit the new one.
func (b *PendingBuffer) Enqueue(userID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[userID]
	if len(q) >= b.cap {
		q = q[1:]
	}
	b.queues[userID] = append(q, domain.PendingEvent{
		Event:      event,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	})
}

// Drain removes and returns the user's queue in enqueue order.
func (b *PendingBuffer) Drain(userID string) []domain.PendingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[userID]
	delete(b.queues, userID)
	return q
}

// Len reports the user's queue depth.
func (b *PendingBuffer) Len(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[userID])
}

// EnqueueStartup captures a dispatch requested before the transport was
// initialized, preserving call order. It reports false once the queue
// has been drained; the caller then dispatches directly instead.
func (b *PendingBuffer) EnqueueStartup(dispatch func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startupDone {
		return false
	}
	b.startup = append(b.startup, dispatch)
	return true
}

// DrainStartup removes and returns the startup queue in call order,
// closing it to further captures.
func (b *PendingBuffer) DrainStartup() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startupDone = true
	q := b.startup
	b.startup = nil
	return q
}
