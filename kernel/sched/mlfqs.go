package sched

// recalcLoadAvgLocked updates the system load average:
//
//	load_avg = (59/60)*load_avg + (1/60)*ready_threads
//
// where ready_threads counts every READY thread plus the running
// thread if it is not idle. Precondition: scheduler lock held.
func (k *Kernel) recalcLoadAvgLocked() {
	readyThreads := k.ready.Len()
	if k.current != k.idle {
		readyThreads++
	}
	fiftyNineSixtieths := FixedFromInt(59).Div(FixedFromInt(60))
	oneSixtieth := FixedFromInt(1).Div(FixedFromInt(60))
	k.loadAvg = fiftyNineSixtieths.Mul(k.loadAvg).Add(oneSixtieth.MulInt(readyThreads))
}

// recalcRecentCPULocked updates a thread's recent_cpu:
//
//	recent_cpu = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice
//
// Precondition: scheduler lock held.
func (k *Kernel) recalcRecentCPULocked(t *Thread) {
	twiceLoad := k.loadAvg.MulInt(2)
	coefficient := twiceLoad.Div(twiceLoad.AddInt(1))
	t.recentCPU = coefficient.Mul(t.recentCPU).AddInt(t.nice)
}

// recalcPriorityLocked updates a thread's priority under MLFQS:
//
//	priority = PRI_MAX - (recent_cpu/4) - (nice*2)
//
// clamped to [PriMin, PriMax]. Under MLFQS, base and effective priority
// are always equal: donation does not participate in this policy.
// Precondition: scheduler lock held.
func (k *Kernel) recalcPriorityLocked(t *Thread) {
	p := FixedFromInt(PriMax).Sub(t.recentCPU.DivInt(4)).SubInt(t.nice * 2).ToIntTrunc()
	if p < PriMin {
		p = PriMin
	}
	if p > PriMax {
		p = PriMax
	}
	t.basePriority = p
	t.effectivePriority = p
	if t.status == StatusReady {
		k.ready.fix(t)
	}
}
