package sched

import "fmt"

// maxDonationDepth bounds the recursive walk through a chain of
// blocking locks, defensively, against a pathological or cyclic
// donation graph — the visited set already makes the walk terminate,
// this is a second belt-and-suspenders cap.
const maxDonationDepth = 8

// Lock is a non-recursive mutex with priority donation, backed by a
// binary semaphore. Grounded on synch.c's lock_acquire/lock_release.
type Lock struct {
	k      *Kernel
	sema   Semaphore
	holder *Thread
}

// Init prepares the lock. Must be called before any other method.
func (l *Lock) Init(k *Kernel) {
	l.k = k
	l.sema.Init(k, 1)
	l.holder = nil
}

// Acquire blocks until the lock is free, donating the calling thread's
// effective priority down the chain of locks blocking the current
// holder (and its holder, and so on) if doing so would raise it. Under
// MLFQS no donation takes place.
func (l *Lock) Acquire() {
	k := l.k
	if k.InInterruptContext() {
		panic("sched: Lock.Acquire called from interrupt context")
	}

	old := k.Disable()
	self := k.current
	if l.holder == self {
		k.SetLevel(old)
		panic("sched: Lock.Acquire: current thread already holds this lock")
	}
	self.waitingForLocks[l] = struct{}{}
	if !k.policyMLFQS && l.holder != nil && self.effectivePriority > l.holder.effectivePriority {
		k.donateChainLocked(l.holder, self.effectivePriority, make(map[*Thread]bool))
	}
	k.SetLevel(old)

	l.sema.Down()

	old = k.Disable()
	delete(self.waitingForLocks, l)
	l.holder = self
	self.heldLocks[l] = struct{}{}
	k.SetLevel(old)
}

// donateChainLocked raises holder's effective priority to newPriority
// if it is currently lower, marks it a donee, and recurses through any
// lock holder itself is blocked on — the transitive donation chain.
// Precondition: scheduler lock held.
func (k *Kernel) donateChainLocked(holder *Thread, newPriority int, visited map[*Thread]bool) {
	if visited[holder] || len(visited) >= maxDonationDepth {
		return
	}
	visited[holder] = true

	if holder.effectivePriority >= newPriority {
		return
	}
	holder.effectivePriority = newPriority
	holder.isDonee = true
	if holder.status == StatusReady {
		k.ready.fix(holder)
	}
	k.metrics.observeDonation()
	k.donationEpisodes++

	for waitedLock := range holder.waitingForLocks {
		if waitedLock.holder != nil {
			k.donateChainLocked(waitedLock.holder, newPriority, visited)
		}
	}
}

// TryAcquire attempts to acquire the lock without blocking. Per the
// Open Question decision recorded in DESIGN.md, a successful
// try-acquire does not participate in donation bookkeeping: it is not
// added to the holder's acquire-list accounting used by Release's
// priority recomputation, faithfully reproducing lock_try_acquire's
// narrower contract.
func (l *Lock) TryAcquire() bool {
	k := l.k
	if !l.sema.TryDown() {
		return false
	}
	old := k.Disable()
	l.holder = k.current
	k.SetLevel(old)
	return true
}

// Release gives up the lock, recomputing the releasing thread's
// effective priority from the max across its still-held locks' waiter
// sets, falling back to its base priority only once no remaining lock
// still owes it a donation.
func (l *Lock) Release() {
	k := l.k
	old := k.Disable()
	self := k.current
	if l.holder != self {
		k.SetLevel(old)
		panic("sched: Lock.Release: current thread does not hold this lock")
	}

	delete(self.heldLocks, l)
	l.holder = nil

	max := PriMin
	for held := range self.heldLocks {
		if p := held.sema.maxWaiterPriorityLocked(); p > max {
			max = p
		}
	}

	switch {
	case len(self.heldLocks) == 0:
		if self.isDonee {
			self.effectivePriority = self.basePriority
			self.isDonee = false
		}
	case max > self.basePriority && !k.policyMLFQS:
		self.effectivePriority = max
		self.isDonee = true
	default:
		self.effectivePriority = self.basePriority
		self.isDonee = false
	}
	if self.status == StatusReady {
		k.ready.fix(self)
	}
	k.SetLevel(old)

	l.sema.Up()
}

// HeldByCurrent reports whether the calling thread currently holds l.
func (l *Lock) HeldByCurrent() bool {
	k := l.k
	old := k.Disable()
	held := l.holder == k.current
	k.SetLevel(old)
	return held
}

func (l *Lock) String() string {
	if l.holder == nil {
		return "Lock{free}"
	}
	return fmt.Sprintf("Lock{held by %q}", l.holder.name)
}
