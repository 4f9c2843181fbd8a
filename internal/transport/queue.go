package transport

import (
	"context"
	"sync"
)

// Queue hands inbound events to a Handler one at a time per participant, in
// arrival order. Different participants are handled in parallel. A worker
// goroutine exists only while its participant has pending events.
type Queue struct {
	h Handler

	mu      sync.Mutex
	pending map[int64][]Inbound
	wg      sync.WaitGroup
}

func NewQueue(h Handler) *Queue {
	return &Queue{h: h, pending: make(map[int64][]Inbound)}
}

// Dispatch enqueues in behind any event of the same participant that is
// still being handled. It never blocks on the handler.
func (q *Queue) Dispatch(ctx context.Context, in Inbound) {
	id := in.ParticipantID
	q.mu.Lock()
	if backlog, running := q.pending[id]; running {
		q.pending[id] = append(backlog, in)
		q.mu.Unlock()
		return
	}
	q.pending[id] = nil
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(ctx, id, in)
}

func (q *Queue) drain(ctx context.Context, id int64, in Inbound) {
	defer q.wg.Done()
	for {
		q.h.Handle(ctx, in)

		q.mu.Lock()
		backlog := q.pending[id]
		if len(backlog) == 0 {
			delete(q.pending, id)
			q.mu.Unlock()
			return
		}
		in = backlog[0]
		q.pending[id] = backlog[1:]
		q.mu.Unlock()
	}
}

// Wait blocks until every dispatched event has been handled.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Len reports the number of participants with events in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
