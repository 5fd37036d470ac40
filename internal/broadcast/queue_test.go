package broadcast

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue[int](10, 0)

	for i := range 5 {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := range 5 {
		v, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned true")
	}
}

func TestQueue_GrowsAt70Percent(t *testing.T) {
	q := NewQueue[int](10, 0)

	for i := range 7 {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Cap != 20 {
		t.Errorf("Cap = %d, want 20", stats.Cap)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
	for i := range 7 {
		if v, _ := q.TryPop(); v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}
}

func TestQueue_LimitDropsOldest(t *testing.T) {
	q := NewQueue[int](2, 4)

	for i := range 10 {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Cap != 4 {
		t.Errorf("Cap = %d, want 4", stats.Cap)
	}
	if stats.Dropped != 6 {
		t.Errorf("Dropped = %d, want 6", stats.Dropped)
	}

	got := q.Drain(0)
	want := []int{6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestQueue_WrapAroundGrow(t *testing.T) {
	q := NewQueue[int](5, 0)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.TryPop()
	q.TryPop()
	q.Push(4)
	q.Push(5)
	q.Push(6)
	q.Push(7)
	q.Push(8)

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Errorf("TryPop() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	got := make(chan int, 1)

	go func() {
		if v, ok := q.Pop(); ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked Pop")
	}
}

func TestQueue_CloseDrainsThenEnds(t *testing.T) {
	q := NewQueue[int](4, 0)
	q.Push(1)
	q.Close()

	if q.Push(2) {
		t.Error("Push after Close returned true")
	}
	if v, ok := q.Pop(); !ok || v != 1 {
		t.Errorf("Pop() = %d, %v; want 1, true", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed empty queue returned true")
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Pop")
	}
}

func TestQueue_DrainLimit(t *testing.T) {
	q := NewQueue[int](4, 0)
	for i := range 6 {
		q.Push(i)
	}

	if got := q.Drain(4); len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Errorf("Drain(4) = %v", got)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	if got := q.Drain(0); len(got) != 2 {
		t.Errorf("Drain(0) = %v, want 2 items", got)
	}
	if got := q.Drain(0); got != nil {
		t.Errorf("Drain on empty queue = %v, want nil", got)
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue[int](8, 0)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			q.Push(i)
		}
	}()

	seen := make(map[int]bool, n)
	for range n {
		v, ok := q.Pop()
		if !ok {
			t.Fatal("Pop returned false before all items were read")
		}
		seen[v] = true
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("received %d distinct items, want %d", len(seen), n)
	}
	if s := q.Stats(); s.Pushed != n || s.Popped != n {
		t.Errorf("stats = %+v", s)
	}
}

func TestNewQueue_Bounds(t *testing.T) {
	if c := NewQueue[int](0, 0).Stats().Cap; c != 1 {
		t.Errorf("Cap = %d, want 1 for initial 0", c)
	}
	if c := NewQueue[int](-3, 0).Stats().Cap; c != 1 {
		t.Errorf("Cap = %d, want 1 for negative initial", c)
	}
	if c := NewQueue[int](100, 8).Stats().Cap; c != 8 {
		t.Errorf("Cap = %d, want 8 when initial exceeds limit", c)
	}
}
