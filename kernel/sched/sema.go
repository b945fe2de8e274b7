package sched

// Semaphore is a counting semaphore: a non-negative value plus a
// FIFO-discovered, priority-ordered waiter set. Grounded on synch.c's
// sema_down/sema_up, including sema_up's unconditional trailing yield.
type Semaphore struct {
	k       *Kernel
	value   int
	waiters []*Thread
}

// Init sets the semaphore's starting value. Must be called before any
// other method.
func (s *Semaphore) Init(k *Kernel, value int) {
	s.k = k
	s.value = value
	s.waiters = nil
}

// Down blocks the calling thread until the semaphore's value is
// positive, then decrements it. The wait is a loop, not an if: a
// thread can be unblocked for other reasons and must re-check.
func (s *Semaphore) Down() {
	k := s.k
	old := k.Disable()
	for s.value == 0 {
		s.waiters = append(s.waiters, k.current)
		k.Block()
	}
	s.value--
	k.SetLevel(old)
}

// TryDown decrements the value and returns true only if it was
// positive; it never blocks.
func (s *Semaphore) TryDown() bool {
	k := s.k
	old := k.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	k.SetLevel(old)
	return ok
}

// Up wakes the highest-effective-priority waiter, if any, then
// increments the value and yields. The wakeup and increment happen with
// interrupts disabled; the trailing yield happens after interrupts are
// restored, matching synch.c's sema_up, which calls thread_yield()
// unconditionally. Nothing in this kernel calls Up from inside Tick's
// interrupt path (see DESIGN.md's Open Question notes), so there is no
// in-tree caller for which this yield would need to be deferred instead.
func (s *Semaphore) Up() {
	k := s.k
	old := k.Disable()
	if len(s.waiters) > 0 {
		idx := s.maxWaiterIndexLocked()
		t := s.waiters[idx]
		s.waiters = append(s.waiters[:idx], s.waiters[idx+1:]...)
		k.unblockLocked(t)
	}
	s.value++
	k.SetLevel(old)
	k.Yield()
}

// maxWaiterIndexLocked returns the index of the waiter with the
// highest effective priority, the earliest such waiter on ties.
// Precondition: len(s.waiters) > 0, scheduler lock held.
func (s *Semaphore) maxWaiterIndexLocked() int {
	best := 0
	for i := 1; i < len(s.waiters); i++ {
		if s.waiters[i].effectivePriority > s.waiters[best].effectivePriority {
			best = i
		}
	}
	return best
}

// maxWaiterPriorityLocked returns the highest effective priority among
// current waiters, or PriMin if there are none. Used by Lock.Release to
// recompute the releasing thread's priority across its remaining held
// locks. Precondition: scheduler lock held.
func (s *Semaphore) maxWaiterPriorityLocked() int {
	if len(s.waiters) == 0 {
		return PriMin
	}
	return s.waiters[s.maxWaiterIndexLocked()].effectivePriority
}
