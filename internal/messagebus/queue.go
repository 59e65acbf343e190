package messagebus

import "container/heap"

// priorityItem is one slot in a recipient's delivery queue, ordered by
// (priority, sequence) per spec §9 — sequence is the bus's monotonic counter
// assigned at enqueue time, replacing the original Python implementation's
// wall-clock timestamp tiebreak (which can collide under concurrent sends).
type priorityItem struct {
	msg *Message
}

// priorityHeap is a container/heap.Interface over priorityItem, the Go
// realization of spec §9's "lock-guarded min-heap keyed by (priority,
// sequence)". The surrounding lock is the owning Bus's mutex, held around
// every push and pop, mirroring the mutex-guarded slice in internal/tasks/queue.go but backed by a heap instead
// of a sorted slice since the bus needs cheap single-item pop under
// concurrent push from many senders.
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i].msg, h[j].msg
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*priorityItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// recipientQueue is a single recipient's priority-then-FIFO mailbox, with a
// channel used only to signal waiting consumers that new work has arrived.
type recipientQueue struct {
	h      priorityHeap
	notify chan struct{}
}

func newRecipientQueue() *recipientQueue {
	return &recipientQueue{
		h:      priorityHeap{},
		notify: make(chan struct{}, 1),
	}
}

func (q *recipientQueue) push(m *Message) {
	heap.Push(&q.h, &priorityItem{msg: m})
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the highest-priority (then earliest-enqueued)
// message, or nil if the queue is empty.
func (q *recipientQueue) pop() *Message {
	if q.h.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.h).(*priorityItem)
	return item.msg
}

func (q *recipientQueue) len() int { return q.h.Len() }
