package sched

import "container/heap"

// readyQueue is the ready_list: a max-effective-priority queue with
// oldest-wins tie-breaking, implemented as a container/heap.Interface —
// the same pattern the teacher's EDF job scheduler uses for its
// priority queue (an *Index*-tracking slice of pointers plus a
// Less/Swap/Push/Pop quartet), adapted from float64 deadline priority to
// integer effective priority with an insertion-order tiebreak.
type readyQueue struct {
	items []*Thread
}

func newReadyQueue() *readyQueue {
	rq := &readyQueue{}
	heap.Init(rq)
	return rq
}

func (rq *readyQueue) Len() int { return len(rq.items) }

func (rq *readyQueue) Less(i, j int) bool {
	a, b := rq.items[i], rq.items[j]
	if a.effectivePriority != b.effectivePriority {
		return a.effectivePriority > b.effectivePriority
	}
	return a.seq < b.seq
}

func (rq *readyQueue) Swap(i, j int) {
	rq.items[i], rq.items[j] = rq.items[j], rq.items[i]
	rq.items[i].heapIndex = i
	rq.items[j].heapIndex = j
}

func (rq *readyQueue) Push(x any) {
	t := x.(*Thread)
	t.heapIndex = len(rq.items)
	rq.items = append(rq.items, t)
}

func (rq *readyQueue) Pop() any {
	old := rq.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	rq.items = old[:n-1]
	return t
}

// push enqueues a thread; it must already be marked StatusReady.
func (rq *readyQueue) push(t *Thread) {
	heap.Push(rq, t)
}

// popMax removes and returns the thread with the highest effective
// priority, oldest first on ties. Returns nil if empty.
func (rq *readyQueue) popMax() *Thread {
	if rq.Len() == 0 {
		return nil
	}
	return heap.Pop(rq).(*Thread)
}

// fix re-heapifies after a thread's effective priority changed while it
// was already enqueued (used when donation/MLFQS recompute touches a
// READY thread).
func (rq *readyQueue) fix(t *Thread) {
	if t.heapIndex >= 0 {
		heap.Fix(rq, t.heapIndex)
	}
}

// peekMaxPriority returns the highest effective priority currently
// queued, or -1 if empty — used for the "yield if no longer highest"
// preemption check without dequeuing.
func (rq *readyQueue) peekMaxPriority() int {
	if rq.Len() == 0 {
		return -1
	}
	// items[0] is the heap root: by the Less ordering above, that is
	// always the thread with the highest effective priority.
	return rq.items[0].effectivePriority
}

func (rq *readyQueue) each(fn func(*Thread)) {
	for _, t := range rq.items {
		fn(t)
	}
}
