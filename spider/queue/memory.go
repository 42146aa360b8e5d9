package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// entry is one ready-to-run item in the priority heap: higher Priority
// runs first, ties broken by insertion order (seq) so same-priority
// items stay FIFO.
type entry struct {
	item     any
	priority int
	seq      int64
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

type scheduledEntry struct {
	item any
	at   time.Time
}

// pollCap bounds how long Get ever sleeps between checks for an overdue
// scheduled item, so a Put/Close always wakes a blocked Get within this
// window even in the (theoretical) case a cond.Broadcast is missed.
const pollCap = 10 * time.Second

// Memory is an in-process Backend: a priority heap of ready items plus a
// separate slice of scheduled items. Get promotes any scheduled item
// whose time has passed to priority 1 in the ready heap, regardless of
// the priority it was originally put at; this mirrors the source
// queue backend's documented-but-unexplained promotion behavior exactly,
// rather than "fixing" it to preserve the original priority.
type Memory struct {
	mu        sync.Mutex
	cond      *sync.Cond
	ready     entryHeap
	scheduled []*scheduledEntry
	seq       int64
	closed    bool
}

// NewMemory returns an empty in-process queue Backend.
func NewMemory() *Memory {
	m := &Memory{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Memory) Put(ctx context.Context, item any, priority int, scheduleTime *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if scheduleTime != nil && scheduleTime.After(time.Now()) {
		m.scheduled = append(m.scheduled, &scheduledEntry{item: item, at: *scheduleTime})
	} else {
		m.seq++
		heap.Push(&m.ready, &entry{item: item, priority: priority, seq: m.seq})
	}
	m.cond.Broadcast()
	return nil
}

// promoteOverdueLocked moves every scheduled item whose time has passed
// into the ready heap at priority 1. Caller holds m.mu.
func (m *Memory) promoteOverdueLocked() {
	now := time.Now()
	remaining := m.scheduled[:0]
	for _, se := range m.scheduled {
		if se.at.After(now) {
			remaining = append(remaining, se)
			continue
		}
		m.seq++
		heap.Push(&m.ready, &entry{item: se.item, priority: 1, seq: m.seq})
	}
	m.scheduled = remaining
}

func (m *Memory) nextWakeLocked() time.Duration {
	wait := pollCap
	now := time.Now()
	for _, se := range m.scheduled {
		if d := se.at.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// waitTimeout blocks on m.cond for at most d, relying on an AfterFunc
// timer to force a wakeup since sync.Cond has no native deadline.
// Caller holds m.mu; cond.Wait releases and reacquires it internally.
func (m *Memory) waitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	m.cond.Wait()
	timer.Stop()
}

// Get blocks until an item is ready, ctx is cancelled, or the backend is
// closed.
func (m *Memory) Get(ctx context.Context) (any, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-done:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.closed {
			return nil, ErrClosed
		}
		m.promoteOverdueLocked()
		if len(m.ready) > 0 {
			e := heap.Pop(&m.ready).(*entry)
			return e.item, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.waitTimeout(m.nextWakeLocked())
	}
}

func (m *Memory) Size() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) + len(m.scheduled), nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = nil
	m.scheduled = nil
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}
