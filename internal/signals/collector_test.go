package signals

import (
	"testing"
	"time"

	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestCollector(t *testing.T) (*Collector, *clock.Virtual) {
	t.Helper()
	v := clock.NewVirtual(epoch)
	c := NewCollector(DefaultConfig(), v, zerolog.Nop())
	c.Start()
	t.Cleanup(c.Stop)
	return c, v
}

func TestCollector_TypingSpeedFromRollingWindow(t *testing.T) {
	c, v := newTestCollector(t)

	for i := 0; i < 10; i++ {
		c.RecordKeystroke(false)
		v.Advance(100 * time.Millisecond)
	}
	v.Advance(500 * time.Millisecond)

	snap := c.Snapshot()
	// 10 keystrokes spread over 1.5s of window.
	assert.InDelta(t, 10.0/1.5, snap.TypingSpeed, 0.01)
}

func TestCollector_TypingSpeedConvergesToZeroAfterWindow(t *testing.T) {
	c, v := newTestCollector(t)

	for i := 0; i < 20; i++ {
		c.RecordKeystroke(false)
		v.Advance(50 * time.Millisecond)
	}
	v.Advance(500 * time.Millisecond)
	require.Positive(t, c.Snapshot().TypingSpeed)

	v.Advance(5 * time.Second)
	assert.Zero(t, c.Snapshot().TypingSpeed)
	assert.GreaterOrEqual(t, c.Snapshot().TypingPauseDuration, 5*time.Second)
}

func TestCollector_DeletionCountDecaysAfterCooldown(t *testing.T) {
	c, v := newTestCollector(t)

	c.RecordKeystroke(true)
	c.RecordKeystroke(true)
	c.RecordKeystroke(true)

	v.Advance(3 * time.Second)
	assert.Equal(t, 3, c.Snapshot().DeletionCount, "no decay before the cooldown elapses")

	v.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, c.Snapshot().DeletionCount)

	v.Advance(time.Second)
	assert.Equal(t, 0, c.Snapshot().DeletionCount)

	v.Advance(time.Second)
	assert.Equal(t, 0, c.Snapshot().DeletionCount, "never goes negative")
}

func TestCollector_PointerFieldsRequireAnchor(t *testing.T) {
	c, v := newTestCollector(t)

	c.RecordPointer(30, 40)
	v.Advance(time.Second)
	snap := c.Snapshot()
	assert.Zero(t, snap.PointerDistanceFromAnchor)
	assert.False(t, snap.IsPointerIdle)

	c.SetAnchor(0, 0)
	v.Advance(500 * time.Millisecond)
	assert.InDelta(t, 50.0, c.Snapshot().PointerDistanceFromAnchor, 0.001)
}

func TestCollector_PointerSamplesAreThrottled(t *testing.T) {
	c, v := newTestCollector(t)
	c.SetAnchor(0, 0)

	c.RecordPointer(10, 0)
	v.Advance(100 * time.Millisecond)
	c.RecordPointer(500, 0) // dropped, within 200ms of the previous sample
	v.Advance(400 * time.Millisecond)

	assert.InDelta(t, 10.0, c.Snapshot().PointerDistanceFromAnchor, 0.001)

	c.RecordPointer(300, 400)
	v.Advance(500 * time.Millisecond)
	assert.InDelta(t, 500.0, c.Snapshot().PointerDistanceFromAnchor, 0.001)
}

func TestCollector_PointerGoesIdle(t *testing.T) {
	c, v := newTestCollector(t)
	c.SetAnchor(0, 0)
	c.RecordPointer(5, 5)

	v.Advance(1500 * time.Millisecond)
	assert.False(t, c.Snapshot().IsPointerIdle)

	v.Advance(time.Second)
	assert.True(t, c.Snapshot().IsPointerIdle)
}

func TestCollector_RecordActionIsImmediate(t *testing.T) {
	c, v := newTestCollector(t)

	v.Advance(3 * time.Second)
	require.GreaterOrEqual(t, c.Snapshot().IdleDuration, 2*time.Second)

	c.RecordAction(ActionSentMessage)

	snap := c.Snapshot()
	assert.Equal(t, ActionSentMessage, snap.LastAction)
	assert.Zero(t, snap.IdleDuration)
	assert.Zero(t, snap.TimeSinceLastAction)

	v.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.Snapshot().TimeSinceLastAction)
}

func TestCollector_RepublishesOnlyOnMaterialChange(t *testing.T) {
	c, _ := newTestCollector(t)

	var published []Context
	c.OnChange(func(ctx Context) { published = append(published, ctx) })

	c.SetMode("chat")
	c.SetMode("chat")
	c.SetMessageCount(0)
	c.SetWaitingForResponse(false)

	require.Len(t, published, 1)
	assert.Equal(t, "chat", published[0].CurrentMode)

	c.SetWaitingForResponse(true)
	require.Len(t, published, 2)
	assert.True(t, published[1].IsWaitingForResponse)
}

func TestCollector_StopCancelsTick(t *testing.T) {
	v := clock.NewVirtual(epoch)
	c := NewCollector(Config{}, v, zerolog.Nop())
	c.Start()
	c.Start()
	assert.Equal(t, 1, v.Pending())

	c.Stop()
	assert.Zero(t, v.Pending())

	c.RecordKeystroke(false)
	v.Advance(10 * time.Second)
	assert.Zero(t, c.Snapshot().TypingSpeed, "no resampling after stop")
}

func TestAction_Valid(t *testing.T) {
	assert.True(t, ActionFileUploaded.Valid())
	assert.False(t, Action("teleported").Valid())
}
