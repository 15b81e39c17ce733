package sandbox

import (
	"container/heap"
	"time"

	"github.com/dop251/goja"
)

// timerEntry is one scheduled timeout or interval
type timerEntry struct {
	id    int64
	when  time.Time
	seq   uint64
	every time.Duration // zero for one-shot timers
	fn    goja.Callable
	args  []goja.Value
	index int
}

// timerQueue orders timers by deadline, then by registration order
type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].when.Equal(q[j].when) {
		return q[i].seq < q[j].seq
	}
	return q[i].when.Before(q[j].when)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// loop is the event loop of one run. Everything except post is confined to
// the session goroutine.
type loop struct {
	queue    timerQueue
	byID     map[int64]*timerEntry
	nextID   int64
	seq      uint64
	external chan func() error
	done     chan struct{}
}

func newLoop() *loop {
	return &loop{
		byID:     make(map[int64]*timerEntry),
		external: make(chan func() error, 16),
		done:     make(chan struct{}),
	}
}

// reserve allocates a handle without scheduling anything
func (l *loop) reserve() int64 {
	l.nextID++
	return l.nextID
}

// schedule registers fn to run after delay, repeating every `every` when non-zero
func (l *loop) schedule(delay, every time.Duration, fn goja.Callable, args []goja.Value) int64 {
	l.seq++
	e := &timerEntry{
		id:    l.reserve(),
		when:  time.Now().Add(delay),
		seq:   l.seq,
		every: every,
		fn:    fn,
		args:  args,
	}
	l.byID[e.id] = e
	heap.Push(&l.queue, e)
	return e.id
}

// cancel stops a timer; unknown ids are ignored
func (l *loop) cancel(id int64) bool {
	e, ok := l.byID[id]
	if !ok {
		return false
	}
	delete(l.byID, id)
	if e.index >= 0 {
		heap.Remove(&l.queue, e.index)
	}
	return true
}

// nextDelay reports how long until the earliest timer is due
func (l *loop) nextDelay(now time.Time) (time.Duration, bool) {
	if len(l.queue) == 0 {
		return 0, false
	}
	return max(l.queue[0].when.Sub(now), 0), true
}

// popDue removes and returns the earliest timer due at now. Intervals are
// rescheduled before they are returned, so a callback may clear itself.
func (l *loop) popDue(now time.Time) *timerEntry {
	if len(l.queue) == 0 || l.queue[0].when.After(now) {
		return nil
	}
	e := heap.Pop(&l.queue).(*timerEntry)
	if e.every > 0 {
		l.seq++
		e.when = now.Add(e.every)
		e.seq = l.seq
		heap.Push(&l.queue, e)
	} else {
		delete(l.byID, e.id)
	}
	return e
}

// clear cancels every timer and returns their ids
func (l *loop) clear() []int64 {
	ids := make([]int64, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	clear(l.byID)
	l.queue = l.queue[:0]
	return ids
}

// post hands a job to the session goroutine. Safe for concurrent use;
// returns false once the run is over.
func (l *loop) post(job func() error) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.external <- job:
		return true
	case <-l.done:
		return false
	}
}

// close rejects further posts
func (l *loop) close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
