package trigger

import (
	"testing"
	"time"

	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_RunsOnlyLastCall(t *testing.T) {
	v := clock.NewVirtual(epoch)
	d := NewDebouncer(v, 400*time.Millisecond)

	var ran []int
	for i := 0; i < 5; i++ {
		i := i
		d.Trigger(func() { ran = append(ran, i) })
		v.Advance(300 * time.Millisecond)
	}
	assert.Empty(t, ran)
	assert.True(t, d.Pending())

	v.Advance(100 * time.Millisecond)
	assert.Equal(t, []int{4}, ran)
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	v := clock.NewVirtual(epoch)
	d := NewDebouncer(v, 100*time.Millisecond)

	assert.False(t, d.Cancel())

	fired := false
	d.Trigger(func() { fired = true })
	assert.True(t, d.Cancel())
	v.Advance(time.Second)
	assert.False(t, fired)
}

func TestDebouncer_RealClock(t *testing.T) {
	d := NewDebouncer(clock.Real{}, 10*time.Millisecond)

	done := make(chan int, 3)
	d.Trigger(func() { done <- 1 })
	d.Trigger(func() { done <- 2 })

	select {
	case got := <-done:
		assert.Equal(t, 2, got)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never ran")
	}
	require.False(t, d.Pending())
}

func TestGate_EnforcesSpacing(t *testing.T) {
	v := clock.NewVirtual(epoch)
	g := NewGate(v, 800*time.Millisecond)

	assert.True(t, g.Allow())
	v.Advance(100 * time.Millisecond)
	assert.False(t, g.Allow())
	v.Advance(600 * time.Millisecond)
	assert.False(t, g.Allow())
	v.Advance(150 * time.Millisecond)
	assert.True(t, g.Allow())
	assert.False(t, g.Allow())
}
