package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThread(name string, priority int, seq uint64) *Thread {
	return &Thread{
		name:              name,
		status:            StatusReady,
		basePriority:      priority,
		effectivePriority: priority,
		seq:               seq,
		heapIndex:         -1,
	}
}

func TestReadyQueuePopsHighestPriorityFirst(t *testing.T) {
	rq := newReadyQueue()
	low := newTestThread("low", 10, 0)
	high := newTestThread("high", 30, 1)
	mid := newTestThread("mid", 20, 2)

	rq.push(low)
	rq.push(high)
	rq.push(mid)

	require.Equal(t, 3, rq.Len())
	assert.Same(t, high, rq.popMax())
	assert.Same(t, mid, rq.popMax())
	assert.Same(t, low, rq.popMax())
	assert.Equal(t, 0, rq.Len())
}

func TestReadyQueueTiesBreakByInsertionOrder(t *testing.T) {
	rq := newReadyQueue()
	first := newTestThread("first", 20, 0)
	second := newTestThread("second", 20, 1)

	rq.push(second)
	rq.push(first)

	assert.Same(t, first, rq.popMax())
	assert.Same(t, second, rq.popMax())
}

func TestReadyQueuePeekMaxPriority(t *testing.T) {
	rq := newReadyQueue()
	assert.Equal(t, -1, rq.peekMaxPriority())

	rq.push(newTestThread("a", 15, 0))
	assert.Equal(t, 15, rq.peekMaxPriority())

	rq.push(newTestThread("b", 40, 1))
	assert.Equal(t, 40, rq.peekMaxPriority())
}

func TestReadyQueueFixReordersAfterPriorityChange(t *testing.T) {
	rq := newReadyQueue()
	a := newTestThread("a", 10, 0)
	b := newTestThread("b", 20, 1)
	rq.push(a)
	rq.push(b)

	a.effectivePriority = 50
	rq.fix(a)

	assert.Same(t, a, rq.popMax())
	assert.Same(t, b, rq.popMax())
}

func TestReadyQueuePopEmptyReturnsNil(t *testing.T) {
	rq := newReadyQueue()
	assert.Nil(t, rq.popMax())
}

func TestReadyQueueEachVisitsAllItems(t *testing.T) {
	rq := newReadyQueue()
	rq.push(newTestThread("a", 1, 0))
	rq.push(newTestThread("b", 2, 1))

	seen := map[string]bool{}
	rq.each(func(th *Thread) { seen[th.name] = true })
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}
