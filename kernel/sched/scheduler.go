package sched

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNoPages is returned by Create when the page heap is exhausted —
// the Go equivalent of thread_create returning TID_ERROR.
var ErrNoPages = errors.New("sched: no pages available for new thread")

// TimeSlice is the number of ticks a thread runs before Tick arms a
// yield, per thread.c's TIME_SLICE.
const TimeSlice = 4

// TimerFreq is the number of ticks per second the MLFQS load_avg/
// recent_cpu recomputation is anchored to, per thread.c's TIMER_FREQ.
const TimerFreq = 100

// BootConfig selects the scheduling policy and sizes the page heap.
type BootConfig struct {
	PolicyMLFQS  bool
	PageCapacity int
}

// Kernel is the scheduler core: the ready list, the all-threads table,
// and every external-collaborator state (interrupt level, page heap,
// fixed-point accumulators) a single logical CPU needs.
//
// Kernel.mu is the single scheduler lock; see Disable/SetLevel in
// interrupt.go. Every field below is read or written only while it is
// held, except idle and the fields explicitly noted otherwise.
type Kernel struct {
	mu          sync.Mutex
	intrEnabled bool
	inTick      bool
	yieldArmed  bool

	pages *PageHeap

	ready   *readyQueue
	all     map[uint64]*Thread
	nextID  uint64
	nextSeq uint64

	current *Thread
	initial *Thread
	idle    *Thread

	policyMLFQS bool
	loadAvg     Fixed
	tickCount   uint64
	threadTicks int

	idleTicks   uint64
	kernelTicks uint64

	contextSwitches  uint64
	donationEpisodes uint64
	maxReadyDepth    int

	logger  *zap.Logger
	metrics *Metrics
}

// New builds a Kernel whose primordial thread is the calling goroutine
// itself — there is no page-backed TCB or bootstrap goroutine for it,
// matching the boot thread in a real kernel having no heap-allocated
// stack of its own.
func New(cfg BootConfig, logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Kernel{
		pages:       NewPageHeap(cfg.PageCapacity),
		ready:       newReadyQueue(),
		all:         make(map[uint64]*Thread),
		policyMLFQS: cfg.PolicyMLFQS,
		intrEnabled: true,
		logger:      logger,
		metrics:     newMetrics(),
	}
	initial := &Thread{
		k:                 k,
		id:                1,
		name:              "main",
		status:            StatusRunning,
		basePriority:      PriDefault,
		effectivePriority: PriDefault,
		heldLocks:         make(map[*Lock]struct{}),
		waitingForLocks:   make(map[*Lock]struct{}),
		magic:             threadMagic,
		cont:              make(chan *Thread),
	}
	k.nextID = 2
	k.all[initial.id] = initial
	k.current = initial
	k.initial = initial
	k.logger.Info("kernel booted", zap.Bool("mlfqs", cfg.PolicyMLFQS), zap.Int("page_capacity", cfg.PageCapacity))
	return k
}

// Start creates the idle thread and blocks the calling thread until it
// has run at least once, via a handshake semaphore — the Go analogue
// of thread_start's sema_down(&idle_started).
func (k *Kernel) Start() error {
	idleStarted := &Semaphore{}
	idleStarted.Init(k, 0)
	idle, err := k.Create("idle", PriMin, idleBody, idleStarted)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.idle = idle
	k.mu.Unlock()
	idleStarted.Down()
	k.logger.Info("idle thread started")
	return nil
}

func idleBody(t *Thread, arg any) {
	started := arg.(*Semaphore)
	started.Up()
	k := t.k
	for {
		old := k.Disable()
		t.status = StatusBlocked
		k.scheduleLocked()
		k.SetLevel(old)
	}
}

// IsIdle reports whether t is the idle thread.
func (k *Kernel) IsIdle(t *Thread) bool { return t == k.idle }

// Current returns the running thread.
func (k *Kernel) Current() *Thread {
	k.mu.Lock()
	t := k.current
	k.mu.Unlock()
	t.checkMagic()
	return t
}

// Foreach calls fn once per thread in all_list, in an unspecified
// order, stopping early if fn returns false. The snapshot is taken
// under the scheduler lock but fn itself runs outside it.
func (k *Kernel) Foreach(fn func(*Thread) bool) {
	old := k.Disable()
	snapshot := make([]*Thread, 0, len(k.all))
	for _, t := range k.all {
		snapshot = append(snapshot, t)
	}
	k.SetLevel(old)
	for _, t := range snapshot {
		if !fn(t) {
			return
		}
	}
}

// Create allocates a page, builds a TCB in the BLOCKED state, starts
// its goroutine, unblocks it onto the ready list, and then
// unconditionally yields — the creator may or may not keep running,
// exactly as thread_create's trailing thread_yield().
func (k *Kernel) Create(name string, priority int, fn func(*Thread, any), arg any) (*Thread, error) {
	if priority < PriMin || priority > PriMax {
		panic(fmt.Sprintf("sched: create %q: priority %d out of range [%d,%d]", name, priority, PriMin, PriMax))
	}

	old := k.Disable()
	t, err := k.createLocked(name, priority, fn, arg)
	k.SetLevel(old)
	if err != nil {
		return nil, err
	}

	k.logger.Debug("thread created", zap.String("name", t.name), zap.Uint64("id", t.id), zap.Int("priority", priority))
	k.Yield()
	return t, nil
}

func (k *Kernel) createLocked(name string, priority int, fn func(*Thread, any), arg any) (*Thread, error) {
	slot, ok := k.pages.Alloc()
	if !ok {
		return nil, ErrNoPages
	}

	id := k.nextID
	k.nextID++

	nice, recentCPU := 0, Fixed(0)
	if k.current != nil {
		nice = k.current.nice
		recentCPU = k.current.recentCPU
	}

	t := &Thread{
		k:                 k,
		id:                id,
		name:              truncateName(name),
		status:            StatusBlocked,
		basePriority:      priority,
		effectivePriority: priority,
		heldLocks:         make(map[*Lock]struct{}),
		waitingForLocks:   make(map[*Lock]struct{}),
		nice:              nice,
		recentCPU:         recentCPU,
		stackPage:         slot,
		magic:             threadMagic,
		fn:                fn,
		arg:               arg,
		cont:              make(chan *Thread),
	}
	k.all[id] = t
	go k.runGoroutine(t)
	k.unblockLocked(t)
	return t, nil
}

// runGoroutine is the bootstrap every non-primordial thread's goroutine
// runs: park for the first handoff, run schedule_tail on behalf of
// whoever switched into us, then execute the thread's body, then exit.
func (k *Kernel) runGoroutine(t *Thread) {
	prev := <-t.cont
	k.mu.Lock()
	k.scheduleTailLocked(prev)
	k.mu.Unlock()

	t.fn(t, t.arg)
	k.Exit()
}

// Exit removes the current thread from all_list, marks it DYING, and
// switches away permanently. It never returns.
func (k *Kernel) Exit() {
	old := k.Disable()
	self := k.current
	delete(k.all, self.id)
	self.status = StatusDying
	k.logger.Debug("thread exiting", zap.String("name", self.name), zap.Uint64("id", self.id))
	k.scheduleLocked()
	_ = old // unreachable: scheduleLocked never returns control to a DYING thread
}

// Yield voluntarily gives up the CPU: the caller rejoins the ready list
// (unless it is the idle thread, which never does) and the scheduler
// picks a successor, which may be the caller itself.
func (k *Kernel) Yield() {
	old := k.Disable()
	self := k.current
	if self != k.idle {
		self.status = StatusReady
		self.seq = k.nextSeq
		k.nextSeq++
		k.ready.push(self)
		k.noteReadyDepthLocked()
	}
	k.scheduleLocked()
	k.SetLevel(old)
}

// Block marks the current thread BLOCKED and switches away. The caller
// must already hold the scheduler lock via Disable — Block does not
// manage its own critical section, matching thread_block's precondition
// that interrupts are already off.
func (k *Kernel) Block() {
	if k.intrEnabled {
		panic("sched: Block called with interrupts enabled")
	}
	self := k.current
	self.status = StatusBlocked
	k.scheduleLocked()
}

// unblockLocked moves a BLOCKED thread to READY and, unless it is the
// idle thread, enqueues it. Callers that already hold the scheduler
// lock (sema_up, lock_release, ...) must call this instead of Unblock
// to avoid relocking.
func (k *Kernel) unblockLocked(t *Thread) {
	if t.status != StatusBlocked {
		panic(fmt.Sprintf("sched: unblock: thread %q (id=%d) not blocked (status=%s)", t.name, t.id, t.status))
	}
	t.status = StatusReady
	if t != k.idle {
		t.seq = k.nextSeq
		k.nextSeq++
		k.ready.push(t)
		k.noteReadyDepthLocked()
	}
}

// noteReadyDepthLocked updates the ready-queue high-water mark exposed
// by GetStats. Precondition: scheduler lock held.
func (k *Kernel) noteReadyDepthLocked() {
	if depth := k.ready.Len(); depth > k.maxReadyDepth {
		k.maxReadyDepth = depth
	}
}

// Unblock is the public, self-managing entry point for moving a
// BLOCKED thread to READY from outside any existing disabled region.
func (k *Kernel) Unblock(t *Thread) {
	old := k.Disable()
	k.unblockLocked(t)
	k.SetLevel(old)
}

// pickNextLocked returns the thread the scheduler hands control to:
// the highest-effective-priority ready thread, or the idle thread if
// the ready list is empty — idle is special-cased here regardless of
// its recorded status, exactly as it is the one time it is ever
// enqueued (at its own creation).
func (k *Kernel) pickNextLocked() *Thread {
	if k.ready.Len() > 0 {
		return k.ready.popMax()
	}
	return k.idle
}

// scheduleLocked performs the actual context switch. Precondition: mu
// held. It always returns with mu held again, *except* when the
// outgoing thread is DYING, in which case its goroutine is about to
// end and will never touch mu again.
func (k *Kernel) scheduleLocked() {
	self := k.current
	next := k.pickNextLocked()
	k.current = next
	next.status = StatusRunning

	if next == self {
		return
	}
	k.contextSwitches++
	k.metrics.observeSwitch(k)

	k.mu.Unlock()
	next.cont <- self
	if self.status == StatusDying {
		return
	}
	prev := <-self.cont
	k.mu.Lock()
	k.scheduleTailLocked(prev)
}

// scheduleTailLocked runs on behalf of the thread that just resumed
// running, on its own goroutine, once the handoff completes. It frees
// the outgoing thread's page if it was DYING and re-validates the
// resumed thread's stack-overflow sentinel.
func (k *Kernel) scheduleTailLocked(prev *Thread) {
	k.threadTicks = 0
	if prev != nil && prev.status == StatusDying && prev != k.initial {
		k.pages.Free(prev.stackPage)
	}
	k.current.checkMagic()
}

// SetPriority sets the current thread's base priority. Under MLFQS
// this is a no-op (niceness governs priority instead); otherwise it
// takes effect immediately unless the thread currently holds a donated
// priority, in which case it is deferred until the donation is
// released, per thread_set_priority.
func (k *Kernel) SetPriority(n int) {
	if n < PriMin || n > PriMax {
		panic(fmt.Sprintf("sched: set priority %d out of range [%d,%d]", n, PriMin, PriMax))
	}
	old := k.Disable()
	if k.policyMLFQS {
		k.SetLevel(old)
		return
	}
	self := k.current
	self.basePriority = n
	if !self.isDonee {
		self.effectivePriority = n
		k.SetLevel(old)
		k.Yield()
		return
	}
	k.SetLevel(old)
}

// GetPriority returns the current thread's effective priority.
func (k *Kernel) GetPriority() int {
	return k.Current().EffectivePriority()
}

// SetNice sets the current thread's MLFQS niceness and immediately
// recomputes its priority.
func (k *Kernel) SetNice(n int) {
	if n < NiceMin || n > NiceMax {
		panic(fmt.Sprintf("sched: set nice %d out of range [%d,%d]", n, NiceMin, NiceMax))
	}
	old := k.Disable()
	self := k.current
	self.nice = n
	shouldYield := false
	if k.policyMLFQS {
		k.recalcPriorityLocked(self)
		maxReady := k.ready.peekMaxPriority()
		shouldYield = self != k.idle && self.effectivePriority < maxReady
	}
	k.SetLevel(old)
	if shouldYield {
		k.Yield()
	}
}

// GetNice returns the current thread's niceness.
func (k *Kernel) GetNice() int {
	return k.Current().Nice()
}

// GetLoadAvg returns the system load average, rounded to the nearest
// integer scaled by 100 (matching Pintos's 100*load_avg convention).
func (k *Kernel) GetLoadAvg() int {
	old := k.Disable()
	v := k.loadAvg.MulInt(100).ToIntRound()
	k.SetLevel(old)
	return v
}

// GetRecentCPU returns the current thread's recent_cpu, scaled by 100.
func (k *Kernel) GetRecentCPU() int {
	old := k.Disable()
	v := k.current.recentCPU.MulInt(100).ToIntRound()
	k.SetLevel(old)
	return v
}

// Tick advances the simulated clock by one timer interrupt: it updates
// MLFQS accumulators in the fixed load_avg -> recent_cpu -> priority
// order, tracks the running thread's time slice, and arms a yield to
// be taken once this call returns rather than switching synchronously
// from interrupt context.
func (k *Kernel) Tick() {
	old := k.Disable()
	k.inTick = true

	self := k.current
	if self == k.idle {
		k.idleTicks++
	} else {
		k.kernelTicks++
	}
	k.tickCount++

	if k.policyMLFQS {
		if self != k.idle {
			self.recentCPU = self.recentCPU.AddInt(1)
		}
		if k.tickCount%TimerFreq == 0 {
			k.recalcLoadAvgLocked()
			for _, t := range k.all {
				k.recalcRecentCPULocked(t)
			}
		}
		if k.tickCount%TimeSlice == 0 {
			for _, t := range k.all {
				k.recalcPriorityLocked(t)
			}
			if self != k.idle && self.effectivePriority < k.ready.peekMaxPriority() {
				k.armYieldOnReturn()
			}
		}
	}

	k.threadTicks++
	if k.threadTicks >= TimeSlice {
		k.armYieldOnReturn()
	}

	k.metrics.observeTick(k)
	k.inTick = false
	yield := k.yieldArmed
	k.yieldArmed = false
	k.SetLevel(old)

	if yield {
		k.Yield()
	}
}
