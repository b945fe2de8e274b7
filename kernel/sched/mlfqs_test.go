package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecalcLoadAvgLockedConvergesTowardReadyCount(t *testing.T) {
	k := newTestKernel(t, 4)
	k.current = k.idle // zero ready threads, zero running non-idle thread
	k.loadAvg = FixedFromInt(1)

	k.recalcLoadAvgLocked()
	// load_avg = 59/60 * 1 + 1/60 * 0, strictly less than 1.
	assert.Less(t, int(k.loadAvg), int(FixedFromInt(1)))
	assert.Greater(t, int(k.loadAvg), 0)
}

func TestRecalcLoadAvgLockedCountsRunningNonIdleThread(t *testing.T) {
	k := newTestKernel(t, 4)
	k.loadAvg = FixedFromInt(0)
	// k.current is already the "main" thread (non-idle) from newTestKernel.
	k.recalcLoadAvgLocked()
	assert.Equal(t, FixedFromInt(1).DivInt(60), k.loadAvg)
}

func TestRecalcRecentCPULockedAppliesDecayAndNice(t *testing.T) {
	k := newTestKernel(t, 4)
	k.loadAvg = FixedFromInt(1)
	th := newTestThread("t", PriDefault, 0)
	th.recentCPU = FixedFromInt(10)
	th.nice = 2

	k.recalcRecentCPULocked(th)

	twiceLoad := k.loadAvg.MulInt(2)
	coefficient := twiceLoad.Div(twiceLoad.AddInt(1))
	want := coefficient.Mul(FixedFromInt(10)).AddInt(2)
	assert.Equal(t, want, th.recentCPU)
}

func TestRecalcPriorityLockedMatchesFormulaAndClamps(t *testing.T) {
	k := newTestKernel(t, 4)

	th := newTestThread("t", PriDefault, 0)
	th.recentCPU = FixedFromInt(40)
	th.nice = 5
	k.recalcPriorityLocked(th)
	want := FixedFromInt(PriMax).Sub(FixedFromInt(40).DivInt(4)).SubInt(5 * 2).ToIntTrunc()
	assert.Equal(t, want, th.basePriority)
	assert.Equal(t, want, th.effectivePriority)

	// Extreme recent_cpu/nice must clamp to PriMin, never go negative.
	th2 := newTestThread("t2", PriDefault, 1)
	th2.recentCPU = FixedFromInt(10000)
	th2.nice = NiceMax
	k.recalcPriorityLocked(th2)
	assert.Equal(t, PriMin, th2.basePriority)

	// A thread with zero recent_cpu and minimum nice clamps to PriMax.
	th3 := newTestThread("t3", PriDefault, 2)
	th3.recentCPU = FixedFromInt(0)
	th3.nice = NiceMin
	k.recalcPriorityLocked(th3)
	assert.Equal(t, PriMax, th3.basePriority)
}

func TestMLFQSPriorityIgnoresExplicitSetPriority(t *testing.T) {
	k := New(BootConfig{PolicyMLFQS: true, PageCapacity: 4}, nil)
	require.NoError(t, k.Start())

	done := make(chan struct{})
	var before, after int
	_, err := k.Create("w", PriDefault, func(th *Thread, _ any) {
		before = th.EffectivePriority()
		k.SetPriority(PriMax)
		after = th.EffectivePriority()
		close(done)
	}, nil)
	require.NoError(t, err)
	<-done
	assert.Equal(t, before, after, "SetPriority must be a no-op under MLFQS")
}

func TestMLFQSSetNiceRecomputesPriorityImmediately(t *testing.T) {
	k := New(BootConfig{PolicyMLFQS: true, PageCapacity: 4}, nil)
	require.NoError(t, k.Start())

	done := make(chan struct{})
	var positiveNicePriority, negativeNicePriority int
	_, err := k.Create("w", PriDefault, func(th *Thread, _ any) {
		k.SetNice(10)
		positiveNicePriority = th.EffectivePriority()
		k.SetNice(-10)
		negativeNicePriority = th.EffectivePriority()
		close(done)
	}, nil)
	require.NoError(t, err)
	<-done
	assert.Less(t, positiveNicePriority, negativeNicePriority,
		"a more positive niceness must yield a strictly lower priority")
}
