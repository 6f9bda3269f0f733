package scheduler

import "github.com/viant/kproc/runtime/process"

// Queue is the FIFO ready queue. A pid appears at most once. Not safe for
// concurrent use; the registry lock guards it.
type Queue struct {
	items  []process.PID
	head   int
	queued map[process.PID]bool
}

// Push appends pid to the tail; it reports false if pid is already queued.
func (q *Queue) Push(pid process.PID) bool {
	if q.queued[pid] {
		return false
	}
	q.queued[pid] = true
	q.items = append(q.items, pid)
	return true
}

// Pop removes and returns the head.
func (q *Queue) Pop() (process.PID, bool) {
	for q.head < len(q.items) {
		pid := q.items[q.head]
		q.head++
		if !q.queued[pid] {
			continue
		}
		delete(q.queued, pid)
		q.compact()
		return pid, true
	}
	q.compact()
	return 0, false
}

// Remove drops pid from the queue; it reports whether pid was queued.
func (q *Queue) Remove(pid process.PID) bool {
	if !q.queued[pid] {
		return false
	}
	delete(q.queued, pid)
	for i := q.head; i < len(q.items); i++ {
		if q.items[i] == pid {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether pid is queued.
func (q *Queue) Contains(pid process.PID) bool {
	return q.queued[pid]
}

// Len returns the number of queued pids.
func (q *Queue) Len() int {
	return len(q.queued)
}

// Snapshot returns the queued pids head first.
func (q *Queue) Snapshot() []process.PID {
	ret := make([]process.PID, 0, q.Len())
	for i := q.head; i < len(q.items); i++ {
		if q.queued[q.items[i]] {
			ret = append(ret, q.items[i])
		}
	}
	return ret
}

func (q *Queue) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 32 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
}

// NewQueue creates an empty ready queue.
func NewQueue() *Queue {
	return &Queue{queued: map[process.PID]bool{}}
}
