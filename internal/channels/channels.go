// Package channels implements the orchestrator's output contracts by
// publishing presence events on the bus. The WebSocket hub relays them to the
// frontend that actually draws the eye, plays sounds and vibrates.
package channels

import (
	"sync/atomic"
	"time"

	"github.com/normanking/cortexpresence/internal/bus"
	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/normanking/cortexpresence/internal/emotion"
)

// MaxSequence bounds the total length of a vibration sequence.
const MaxSequence = 400 * time.Millisecond

// Publisher is the subset of the event bus used by the channels.
type Publisher interface {
	PublishSync(event bus.Event)
}

// Surface forwards emotion changes to the render surface.
type Surface struct {
	pub         Publisher
	sched       clock.Scheduler
	transitions map[emotion.AgentEmotion]time.Duration
}

// NewSurface creates a surface. transitions may be nil.
func NewSurface(pub Publisher, sched clock.Scheduler, transitions map[emotion.AgentEmotion]time.Duration) *Surface {
	if transitions == nil {
		transitions = emotion.DefaultTransitionDurations()
	}
	return &Surface{pub: pub, sched: sched, transitions: transitions}
}

func (s *Surface) SetAgentEmotion(e emotion.AgentEmotion) {
	s.pub.PublishSync(bus.NewEvent(bus.EventTypeEmotionChanged, s.sched.Now(), map[string]any{
		"emotion":      string(e),
		"transitionMs": s.transitions[e].Milliseconds(),
	}))
}

var cues = map[emotion.AgentEmotion]string{
	emotion.Calm:       "soft-hum",
	emotion.Happy:      "bright-chime",
	emotion.Excited:    "rising-sparkle",
	emotion.Thinking:   "low-tick",
	emotion.Frustrated: "muted-thud",
	emotion.Curious:    "question-lilt",
	emotion.Sad:        "descending-tone",
	emotion.Mad:        "sharp-buzz",
	emotion.Bored:      "flat-sigh",
	emotion.Comfort:    "warm-swell",
	emotion.Supportive: "gentle-rise",
}

// Cue returns the sound played for e.
func Cue(e emotion.AgentEmotion) string {
	if c, ok := cues[e]; ok {
		return c
	}
	return cues[emotion.Calm]
}

// Audio plays emotion cues while sound is enabled.
type Audio struct {
	pub     Publisher
	sched   clock.Scheduler
	enabled atomic.Bool
}

// NewAudio creates an audio channel.
func NewAudio(pub Publisher, sched clock.Scheduler, enabled bool) *Audio {
	a := &Audio{pub: pub, sched: sched}
	a.enabled.Store(enabled)
	return a
}

// SetEnabled toggles sound.
func (a *Audio) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

// Enabled reports whether sound is on.
func (a *Audio) Enabled() bool { return a.enabled.Load() }

func (a *Audio) PlayEmotionCue(e emotion.AgentEmotion) {
	if !a.enabled.Load() {
		return
	}
	a.pub.PublishSync(bus.NewEvent(bus.EventTypeAudioCue, a.sched.Now(), map[string]any{
		"emotion": string(e),
		"cue":     Cue(e),
	}))
}

// sequences alternate vibrate and pause durations in milliseconds.
var sequences = map[emotion.HapticPattern][]int{
	emotion.PatternCalm:      {30},
	emotion.PatternComfort:   {60, 80, 60},
	emotion.PatternPatience:  {40, 120, 40},
	emotion.PatternCurious:   {20, 60, 20, 60, 20},
	emotion.PatternMirrorJoy: {30, 40, 30, 40, 60},
	emotion.PatternExcited:   {25, 25, 25, 25, 25, 25, 50},
	emotion.PatternTick:      {10},
	emotion.PatternSharp:     {80},
	emotion.PatternEmphasis:  {120},
}

// Sequence returns a copy of the vibration sequence for p.
func Sequence(p emotion.HapticPattern) []int {
	seq, ok := sequences[p]
	if !ok {
		seq = sequences[emotion.PatternCalm]
	}
	return append([]int(nil), seq...)
}

// Haptics fires vibration patterns while haptics are enabled.
type Haptics struct {
	pub     Publisher
	sched   clock.Scheduler
	enabled atomic.Bool
}

// NewHaptics creates a haptic channel.
func NewHaptics(pub Publisher, sched clock.Scheduler, enabled bool) *Haptics {
	h := &Haptics{pub: pub, sched: sched}
	h.enabled.Store(enabled)
	return h
}

// SetEnabled toggles haptics.
func (h *Haptics) SetEnabled(enabled bool) { h.enabled.Store(enabled) }

// Enabled reports whether haptics are on.
func (h *Haptics) Enabled() bool { return h.enabled.Load() }

func (h *Haptics) Pulse(p emotion.HapticPattern) {
	if !h.enabled.Load() {
		return
	}
	h.pub.PublishSync(bus.NewEvent(bus.EventTypeHapticPulse, h.sched.Now(), map[string]any{
		"pattern":  string(p),
		"sequence": Sequence(p),
	}))
}
