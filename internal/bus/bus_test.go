package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventTypeAudioCue, epoch, map[string]any{"emotion": "calm"})
	b := NewEvent(EventTypeAudioCue, epoch, nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, EventTypeAudioCue, a.Type)
	assert.Equal(t, epoch, a.Time)
}

func TestPublishSync_DeliversToTypedAndWildcardHandlers(t *testing.T) {
	b := NewEventBus()

	var typed, wildcard atomic.Int32
	b.Subscribe(EventTypeEmotionChanged, func(Event) { typed.Add(1) })
	b.SubscribeAll(func(Event) { wildcard.Add(1) })

	b.PublishSync(NewEvent(EventTypeEmotionChanged, epoch, nil))
	b.PublishSync(NewEvent(EventTypeHapticPulse, epoch, nil))

	assert.EqualValues(t, 1, typed.Load())
	assert.EqualValues(t, 2, wildcard.Load())
}

func TestPublishSync_PreservesOrder(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var got []EventType
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})

	want := []EventType{EventTypeEmotionChanged, EventTypeHapticPulse, EventTypeAudioCue}
	for _, et := range want {
		b.PublishSync(NewEvent(et, epoch, nil))
	}
	assert.Equal(t, want, got)
}

func TestPublish_IsAsync(t *testing.T) {
	b := NewEventBus()

	done := make(chan Event, 1)
	b.Subscribe(EventTypeFlowChanged, func(e Event) { done <- e })
	b.Publish(NewEvent(EventTypeFlowChanged, epoch, map[string]any{"momentum": "active"}))

	select {
	case e := <-done:
		assert.Equal(t, "active", e.Data["momentum"])
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()

	var n atomic.Int32
	cancel := b.SubscribeMultiple([]EventType{EventTypeAudioCue, EventTypeHapticPulse}, func(Event) { n.Add(1) })
	cancelAll := b.SubscribeAll(func(Event) { n.Add(10) })

	b.PublishSync(NewEvent(EventTypeAudioCue, epoch, nil))
	require.EqualValues(t, 11, n.Load())

	cancel()
	cancelAll()
	b.PublishSync(NewEvent(EventTypeHapticPulse, epoch, nil))
	assert.EqualValues(t, 11, n.Load())
}

func TestLastAndSnapshot(t *testing.T) {
	b := NewEventBus()

	_, ok := b.Last(EventTypeEmotionChanged)
	assert.False(t, ok)

	b.PublishSync(NewEvent(EventTypeEmotionChanged, epoch, map[string]any{"emotion": "happy"}))
	b.PublishSync(NewEvent(EventTypeFlowChanged, epoch.Add(time.Second), nil))
	b.PublishSync(NewEvent(EventTypeEmotionChanged, epoch.Add(2*time.Second), map[string]any{"emotion": "calm"}))

	last, ok := b.Last(EventTypeEmotionChanged)
	require.True(t, ok)
	assert.Equal(t, "calm", last.Data["emotion"])

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, EventTypeFlowChanged, snap[0].Type)
	assert.Equal(t, EventTypeEmotionChanged, snap[1].Type)

	b.Clear()
	assert.Empty(t, b.Snapshot())
}
