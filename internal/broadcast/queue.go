package broadcast

import "sync"

// Queue is a thread-safe FIFO ring that doubles its capacity once it is 70%
// full. With a non-zero limit the ring stops growing at limit and the oldest
// item is overwritten, so a stalled subscriber costs bounded memory.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	tail   int
	count  int
	limit  int
	closed bool

	pushed  int64
	popped  int64
	dropped int64
	grows   int
}

// QueueStats is a point-in-time view of a Queue.
type QueueStats struct {
	Len     int   `json:"len"`
	Cap     int   `json:"cap"`
	Limit   int   `json:"limit"`
	Pushed  int64 `json:"pushed"`
	Popped  int64 `json:"popped"`
	Dropped int64 `json:"dropped"`
	Resizes int   `json:"resizes"`
}

// NewQueue creates a queue with the given initial capacity. limit <= 0 means
// the queue grows without bound.
func NewQueue[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	q := &Queue[T]{
		ring:  make([]T, initial),
		limit: limit,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. Returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := max(len(q.ring)*70/100, 1)
	if q.count+1 >= threshold && (q.limit <= 0 || len(q.ring) < q.limit) {
		q.grow()
	}

	if q.count == len(q.ring) {
		// At the limit: overwrite the oldest entry.
		var zero T
		q.ring[q.head] = zero
		q.head = (q.head + 1) % len(q.ring)
		q.count--
		q.dropped++
	}

	q.ring[q.tail] = item
	q.tail = (q.tail + 1) % len(q.ring)
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false once the queue is
// closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.take()
}

// TryPop returns the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take()
}

// Drain removes up to n items (all of them when n <= 0).
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > q.count {
		n = q.count
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for range n {
		item, _ := q.take()
		out = append(out, item)
	}
	return out
}

// Close stops further pushes and wakes every blocked Pop.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:     q.count,
		Cap:     len(q.ring),
		Limit:   q.limit,
		Pushed:  q.pushed,
		Popped:  q.popped,
		Dropped: q.dropped,
		Resizes: q.grows,
	}
}

// take must be called with mu held.
func (q *Queue[T]) take() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.popped++
	return item, true
}

// grow must be called with mu held.
func (q *Queue[T]) grow() {
	size := len(q.ring) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	ring := make([]T, size)

	if q.count > 0 {
		if q.head < q.tail {
			copy(ring, q.ring[q.head:q.tail])
		} else {
			n := copy(ring, q.ring[q.head:])
			copy(ring[n:], q.ring[:q.tail])
		}
	}

	q.ring = ring
	q.head = 0
	q.tail = q.count
	q.grows++
}
