package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T, capacity int) *Kernel {
	t.Helper()
	k := New(BootConfig{PageCapacity: capacity}, nil)
	require.NoError(t, k.Start())
	return k
}

func TestCreateRunsAndExits(t *testing.T) {
	k := newTestKernel(t, 4)

	done := make(chan struct{})
	_, err := k.Create("worker", PriDefault, func(th *Thread, _ any) {
		close(done)
	}, nil)
	require.NoError(t, err)

	<-done
}

func TestCreateRejectsOutOfRangePriority(t *testing.T) {
	k := newTestKernel(t, 4)
	assert.Panics(t, func() {
		k.Create("bad", PriMax+1, func(*Thread, any) {}, nil)
	})
	assert.Panics(t, func() {
		k.Create("bad", PriMin-1, func(*Thread, any) {}, nil)
	})
}

func TestCreateReturnsErrNoPagesWhenExhausted(t *testing.T) {
	k := newTestKernel(t, 1) // idle already consumed the only page
	_, err := k.Create("worker", PriDefault, func(*Thread, any) {}, nil)
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestHigherPriorityThreadRunsBeforeCreatorResumes(t *testing.T) {
	k := newTestKernel(t, 4)

	var order []string
	done := make(chan struct{})

	_, err := k.Create("urgent", PriMax-1, func(th *Thread, _ any) {
		order = append(order, "urgent")
		close(done)
	}, nil)
	require.NoError(t, err)
	order = append(order, "creator-resumed")

	<-done
	require.Len(t, order, 2)
	assert.Equal(t, "urgent", order[0])
	assert.Equal(t, "creator-resumed", order[1])
}

func TestYieldAllowsEqualPriorityThreadsToInterleave(t *testing.T) {
	k := newTestKernel(t, 4)

	var order []string
	done := make(chan struct{}, 2)

	_, err := k.Create("a", PriDefault, func(th *Thread, _ any) {
		order = append(order, "a")
		done <- struct{}{}
	}, nil)
	require.NoError(t, err)

	_, err = k.Create("b", PriDefault, func(th *Thread, _ any) {
		order = append(order, "b")
		done <- struct{}{}
	}, nil)
	require.NoError(t, err)

	<-done
	<-done
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestIsIdle(t *testing.T) {
	k := newTestKernel(t, 4)
	current := k.Current()
	assert.False(t, k.IsIdle(current))
}

func TestForeachVisitsAllThreads(t *testing.T) {
	k := newTestKernel(t, 4)
	done := make(chan struct{})
	_, err := k.Create("worker", PriDefault, func(*Thread, any) {
		close(done)
	}, nil)
	require.NoError(t, err)
	<-done

	names := map[string]bool{}
	k.Foreach(func(th *Thread) bool {
		names[th.Name()] = true
		return true
	})
	assert.True(t, names["main"])
	assert.True(t, names["idle"])
}

func TestForeachStopsEarly(t *testing.T) {
	k := newTestKernel(t, 4)
	visited := 0
	k.Foreach(func(th *Thread) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestSetPriorityTakesEffectImmediatelyWhenNotDonee(t *testing.T) {
	k := newTestKernel(t, 4)
	done := make(chan struct{})
	_, err := k.Create("w", PriDefault, func(th *Thread, _ any) {
		k.SetPriority(PriDefault + 10)
		assert.Equal(t, PriDefault+10, th.EffectivePriority())
		assert.Equal(t, PriDefault+10, th.BasePriority())
		close(done)
	}, nil)
	require.NoError(t, err)
	<-done
}

func TestGetSetNiceAndPriority(t *testing.T) {
	k := newTestKernel(t, 4)
	done := make(chan struct{})
	_, err := k.Create("w", PriDefault, func(th *Thread, _ any) {
		k.SetNice(5)
		assert.Equal(t, 5, k.GetNice())
		close(done)
	}, nil)
	require.NoError(t, err)
	<-done
}
