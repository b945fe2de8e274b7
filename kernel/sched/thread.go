package sched

import "fmt"

// Status is a thread's scheduling state.
type Status int

const (
	StatusRunning Status = iota
	StatusReady
	StatusBlocked
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// Priority bounds and the MLFQS nice range, bit-exact per §6.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63

	NiceMin = -20
	NiceMax = 20

	// TIDError is the reserved thread id 0, never assigned to a thread
	// (ids start at 1). Create reports an exhausted page heap as
	// ErrNoPages, not through this value.
	TIDError = 0

	threadMagic  = 0xcd6abf4b
	maxNameChars = 15
)

// Thread is a thread control block. Every field mutation happens while
// the owning Kernel's scheduler lock is held (the Go stand-in for
// "interrupts disabled"); see Kernel.Disable.
type Thread struct {
	k *Kernel

	id     uint64
	name   string
	status Status

	basePriority      int
	effectivePriority int
	isDonee           bool

	heldLocks       map[*Lock]struct{}
	waitingForLocks map[*Lock]struct{}

	nice      int
	recentCPU Fixed

	stackPage int
	magic     uint32

	fn  func(*Thread, any)
	arg any

	// cont is the baton channel: exactly one goroutine (this thread's
	// own) ever receives on it, carrying the thread that just handed
	// off control — the Go analogue of switch()'s
	// previous_tcb_after_resume return value.
	cont chan *Thread

	// heapIndex/seq back the ready-list priority queue (runqueue.go):
	// heapIndex is container/heap's bookkeeping slot, seq is the
	// insertion order used to break priority ties in favor of the
	// oldest thread.
	heapIndex int
	seq       uint64
}

// ID returns the thread's identifier.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's current scheduling status.
func (t *Thread) Status() Status { return t.status }

// BasePriority returns the priority configured by the thread itself.
func (t *Thread) BasePriority() int { return t.basePriority }

// EffectivePriority returns the priority the thread is scheduled by.
func (t *Thread) EffectivePriority() int { return t.effectivePriority }

// IsDonee reports whether the thread currently holds a donated priority.
func (t *Thread) IsDonee() bool { return t.isDonee }

// Nice returns the thread's MLFQS niceness.
func (t *Thread) Nice() int { return t.nice }

// checkMagic panics (a fatal kernel assertion, §7) if the stack-overflow
// sentinel has been clobbered.
func (t *Thread) checkMagic() {
	if t.magic != threadMagic {
		panic(fmt.Sprintf("thread %q (id=%d): stack overflow detected, magic=%#x", t.name, t.id, t.magic))
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread{id=%d name=%q status=%s base=%d eff=%d donee=%v nice=%d}",
		t.id, t.name, t.status, t.basePriority, t.effectivePriority, t.isDonee, t.nice)
}

func truncateName(name string) string {
	if len(name) > maxNameChars {
		return name[:maxNameChars]
	}
	return name
}
