package sched

// Cond is a Mesa-style condition variable: waiting always re-checks its
// predicate in a loop after waking, because Signal/Broadcast only
// suggest the predicate might now hold. Grounded on synch.c's
// cond_wait/cond_signal/cond_broadcast, where each waiter parks on its
// own private binary semaphore and the condition variable itself keeps
// an ordered list of those semaphores.
type Cond struct {
	k       *Kernel
	waiters []*Semaphore
}

// Init prepares the condition variable. Must be called before any
// other method.
func (c *Cond) Init(k *Kernel) {
	c.k = k
	c.waiters = nil
}

// Wait atomically releases l and blocks the calling thread, which must
// already hold l, until woken by Signal or Broadcast — at which point
// it reacquires l before returning. The caller is responsible for
// re-checking its predicate, since Mesa semantics give no guarantee the
// predicate still holds.
func (c *Cond) Wait(l *Lock) {
	if !l.HeldByCurrent() {
		panic("sched: Cond.Wait: current thread does not hold the associated lock")
	}
	priv := &Semaphore{}
	priv.Init(c.k, 0)
	c.waiters = append(c.waiters, priv)

	l.Release()
	priv.Down()
	l.Acquire()
}

// Signal wakes the single waiter whose sleeping thread has the highest
// effective priority, if any are waiting. The caller must hold l.
func (c *Cond) Signal(l *Lock) {
	if !l.HeldByCurrent() {
		panic("sched: Cond.Signal: current thread does not hold the associated lock")
	}
	k := c.k
	old := k.Disable()
	idx, ok := c.bestWaiterLocked()
	var chosen *Semaphore
	if ok {
		chosen = c.waiters[idx]
		c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
	}
	k.SetLevel(old)

	if chosen != nil {
		chosen.Up()
	}
}

// Broadcast wakes every waiter whose thread has already parked in Wait,
// highest effective priority first. A handle whose thread has enqueued
// it but not yet parked is left in the queue and not woken. The caller
// must hold l.
func (c *Cond) Broadcast(l *Lock) {
	for len(c.waiters) > 0 {
		before := len(c.waiters)
		c.Signal(l)
		if len(c.waiters) == before {
			// No remaining waiter has actually parked yet; nothing more
			// to do until it does.
			return
		}
	}
}

// bestWaiterLocked returns the index of the waiter handle whose
// private semaphore already has a parked sleeper and whose priority is
// highest, skipping any handle appended but not yet parked. Precondition:
// scheduler lock held.
func (c *Cond) bestWaiterLocked() (int, bool) {
	best := -1
	bestPriority := -1
	for i, s := range c.waiters {
		if len(s.waiters) == 0 {
			continue
		}
		p := s.maxWaiterPriorityLocked()
		if p > bestPriority {
			bestPriority = p
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}
