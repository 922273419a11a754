package utterance

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotReady    = errors.New("utterance is not timeline-ready")
	ErrNotReserved = errors.New("utterance sequence was not reserved")
	ErrDuplicate   = errors.New("utterance sequence already released")
)

// Queue releases utterances strictly in request order. A sequence number is
// reserved when synthesis is requested; completions that arrive early are
// held back until every earlier sequence has been pushed or abandoned.
//
// Queue is safe for concurrent producers. The head is read by a single
// playback consumer.
type Queue struct {
	mu        sync.Mutex
	next      uint64 // next sequence to hand out
	head      uint64 // lowest sequence not yet released
	ready     []*Utterance
	parked    map[uint64]*Utterance
	abandoned map[uint64]struct{}
	onDepth   func(ready, parked int)
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		next:      1,
		head:      1,
		parked:    make(map[uint64]*Utterance),
		abandoned: make(map[uint64]struct{}),
	}
}

// OnDepthChange registers a callback invoked after every change in size.
func (q *Queue) OnDepthChange(fn func(ready, parked int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDepth = fn
}

// Reserve hands out the next request sequence number.
func (q *Queue) Reserve() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.next
	q.next++
	return seq
}

// Push inserts a timeline-ready utterance at its reserved position.
func (q *Queue) Push(u *Utterance) error {
	if u == nil {
		return errors.New("push: nil utterance")
	}
	if u.Status() != StatusTimelineReady {
		return fmt.Errorf("push %s: %w (status %s)", u.ID, ErrNotReady, u.Status())
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if u.Seq == 0 || u.Seq >= q.next {
		return fmt.Errorf("push %s seq %d: %w", u.ID, u.Seq, ErrNotReserved)
	}
	if u.Seq < q.head {
		return fmt.Errorf("push %s seq %d: %w", u.ID, u.Seq, ErrDuplicate)
	}
	if _, ok := q.parked[u.Seq]; ok {
		return fmt.Errorf("push %s seq %d: %w", u.ID, u.Seq, ErrDuplicate)
	}
	if _, ok := q.abandoned[u.Seq]; ok {
		return fmt.Errorf("push %s seq %d: %w", u.ID, u.Seq, ErrDuplicate)
	}

	q.parked[u.Seq] = u
	q.release()
	return nil
}

// Abandon gives up a reserved sequence whose utterance failed, so that later
// utterances are not held back behind it.
func (q *Queue) Abandon(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq < q.head || seq >= q.next {
		return
	}
	if _, ok := q.parked[seq]; ok {
		return
	}
	q.abandoned[seq] = struct{}{}
	q.release()
}

// release moves every contiguous sequence starting at head into ready.
// Caller holds q.mu.
func (q *Queue) release() {
	for {
		if u, ok := q.parked[q.head]; ok {
			delete(q.parked, q.head)
			q.ready = append(q.ready, u)
		} else if _, ok := q.abandoned[q.head]; ok {
			delete(q.abandoned, q.head)
		} else {
			break
		}
		q.head++
	}
	q.notify()
}

func (q *Queue) notify() {
	if q.onDepth != nil {
		q.onDepth(len(q.ready), len(q.parked))
	}
}

// Peek returns the head without removing it, or nil when empty.
func (q *Queue) Peek() *Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil
	}
	return q.ready[0]
}

// Pop removes and returns the head, or nil when empty.
func (q *Queue) Pop() *Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil
	}
	u := q.ready[0]
	q.ready[0] = nil
	q.ready = q.ready[1:]
	q.notify()
	return u
}

// Len returns the number of utterances ready for playback.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Pending returns the number of completed utterances waiting on an earlier request.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.parked)
}

// Snapshot returns the ids of ready utterances in playback order.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(q.ready))
	for i, u := range q.ready {
		ids[i] = u.ID
	}
	return ids
}
