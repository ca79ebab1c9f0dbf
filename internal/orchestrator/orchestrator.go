// Package orchestrator sequences the visual, audio and haptic channels for an
// agent emotion change. It owns the only pending schedule: accepting a new
// target cancels every timer of the previous one before anything else runs.
package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownEmotion is returned for a target outside the agent vocabulary.
	ErrUnknownEmotion = emotion.ErrUnknownEmotion
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("orchestrator closed")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid orchestrator config")
)

// RenderSurface displays an agent emotion. Calls must be cheap and idempotent.
type RenderSurface interface {
	SetAgentEmotion(e emotion.AgentEmotion)
}

// AudioChannel plays the cue for an emotion. It must be a no-op when disabled.
type AudioChannel interface {
	PlayEmotionCue(e emotion.AgentEmotion)
}

// HapticChannel fires a vibration pattern. It must be a no-op when disabled.
type HapticChannel interface {
	Pulse(p emotion.HapticPattern)
}

// Channels groups the output channels. Nil members are skipped.
type Channels struct {
	Surface RenderSurface
	Audio   AudioChannel
	Haptics HapticChannel
}

// Request asks for a transition to Target.
type Request struct {
	Target     emotion.AgentEmotion
	Immediate  bool
	SkipSound  bool
	SkipHaptic bool
}

// Config holds the timing parameters.
type Config struct {
	TransitionDurations map[emotion.AgentEmotion]time.Duration
	DuplicateWindow     time.Duration
	HapticDelay         time.Duration
	AudioFraction       float64
	PulseFraction       float64
	CalmCueDelay        time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		TransitionDurations: emotion.DefaultTransitionDurations(),
		DuplicateWindow:     500 * time.Millisecond,
		HapticDelay:         40 * time.Millisecond,
		AudioFraction:       0.3,
		PulseFraction:       0.4,
		CalmCueDelay:        100 * time.Millisecond,
	}
}

// Validate rejects negative delays, fractions outside [0,1] and unknown or
// non-positive transition durations.
func (c Config) Validate() error {
	switch {
	case c.DuplicateWindow < 0:
		return fmt.Errorf("%w: duplicate window %v is negative", ErrInvalidConfig, c.DuplicateWindow)
	case c.HapticDelay < 0:
		return fmt.Errorf("%w: haptic delay %v is negative", ErrInvalidConfig, c.HapticDelay)
	case c.CalmCueDelay < 0:
		return fmt.Errorf("%w: calm cue delay %v is negative", ErrInvalidConfig, c.CalmCueDelay)
	case c.AudioFraction < 0 || c.AudioFraction > 1:
		return fmt.Errorf("%w: audio fraction %v outside [0,1]", ErrInvalidConfig, c.AudioFraction)
	case c.PulseFraction < 0 || c.PulseFraction > 1:
		return fmt.Errorf("%w: pulse fraction %v outside [0,1]", ErrInvalidConfig, c.PulseFraction)
	}
	for e, d := range c.TransitionDurations {
		if !e.Valid() {
			return fmt.Errorf("%w: transition for %w %q", ErrInvalidConfig, ErrUnknownEmotion, e)
		}
		if d <= 0 {
			return fmt.Errorf("%w: transition for %s must be positive, got %v", ErrInvalidConfig, e, d)
		}
	}
	return nil
}

// State is a read-only view of the orchestrator.
type State struct {
	Emotion    emotion.AgentEmotion
	AcceptedAt time.Time
	Pending    int
}

// Orchestrator is safe for concurrent use. Channel calls happen while its
// lock is held, so channels must not call back into it.
type Orchestrator struct {
	mu     sync.Mutex
	cfg    Config
	ch     Channels
	sched  clock.Scheduler
	logger zerolog.Logger

	current    emotion.AgentEmotion
	acceptedAt time.Time

	// generation invalidates callbacks from superseded schedules.
	generation uint64
	nextID     uint64
	pending    map[uint64]clock.Handle

	closed bool
}

// New creates an orchestrator. Transition durations missing from cfg fall
// back to the defaults.
func New(cfg Config, ch Channels, sched clock.Scheduler, logger zerolog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	durations := emotion.DefaultTransitionDurations()
	for e, d := range cfg.TransitionDurations {
		durations[e] = d
	}
	cfg.TransitionDurations = durations

	return &Orchestrator{
		cfg:     cfg,
		ch:      ch,
		sched:   sched,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		pending: make(map[uint64]clock.Handle),
	}, nil
}

// Request applies req. It returns false without side effects when the same
// target was accepted less than DuplicateWindow ago.
func (o *Orchestrator) Request(req Request) (bool, error) {
	if !req.Target.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownEmotion, req.Target)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false, ErrClosed
	}

	now := o.sched.Now()
	if o.current == req.Target && !o.acceptedAt.IsZero() && now.Sub(o.acceptedAt) < o.cfg.DuplicateWindow {
		o.logger.Debug().Str("emotion", string(req.Target)).Msg("Duplicate request suppressed")
		return false, nil
	}

	if n := o.cancelLocked(); n > 0 {
		o.logger.Debug().
			Str("from", string(o.current)).
			Str("to", string(req.Target)).
			Int("cancelled", n).
			Msg("Superseded pending schedule")
	}

	o.current = req.Target
	o.acceptedAt = now
	o.render(req.Target)

	if req.Immediate {
		if !req.SkipSound {
			o.playCue(req.Target)
		}
		if !req.SkipHaptic {
			o.pulse(emotion.HapticFor(req.Target))
		}
		o.logger.Debug().Str("emotion", string(req.Target)).Msg("Immediate transition")
		return true, nil
	}

	d := o.duration(req.Target)
	if !req.SkipSound {
		target := req.Target
		o.scheduleLocked(scale(d, o.cfg.AudioFraction), func() { o.playCue(target) })
	}
	if !req.SkipHaptic {
		pattern := emotion.HapticFor(req.Target)
		o.scheduleLocked(o.cfg.HapticDelay, func() { o.pulse(pattern) })
		if req.Target.HighEnergy() {
			o.scheduleLocked(scale(d, o.cfg.PulseFraction), func() { o.pulse(emotion.PatternEmphasis) })
		}
	}

	o.logger.Debug().
		Str("emotion", string(req.Target)).
		Dur("transition", d).
		Int("scheduled", len(o.pending)).
		Msg("Staged transition")
	return true, nil
}

// ResetToCalm goes straight to calm, bypassing duplicate suppression, and
// plays the calm cue after CalmCueDelay.
func (o *Orchestrator) ResetToCalm() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	o.cancelLocked()
	o.current = emotion.Calm
	o.acceptedAt = o.sched.Now()
	o.render(emotion.Calm)
	o.scheduleLocked(o.cfg.CalmCueDelay, func() { o.playCue(emotion.Calm) })

	o.logger.Debug().Msg("Reset to calm")
	return nil
}

// Current reports the last accepted emotion and the number of pending timers.
func (o *Orchestrator) Current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Emotion: o.current, AcceptedAt: o.acceptedAt, Pending: len(o.pending)}
}

// Close cancels every pending timer. Later calls return ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.cancelLocked()
	o.closed = true
	return nil
}

func (o *Orchestrator) duration(e emotion.AgentEmotion) time.Duration {
	if d, ok := o.cfg.TransitionDurations[e]; ok {
		return d
	}
	return o.cfg.TransitionDurations[emotion.Calm]
}

// scale returns round(d*f) at millisecond resolution.
func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(math.Round(float64(d.Milliseconds())*f)) * time.Millisecond
}

func (o *Orchestrator) scheduleLocked(delay time.Duration, fn func()) {
	gen := o.generation
	o.nextID++
	id := o.nextID

	o.pending[id] = o.sched.Schedule(delay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.generation != gen {
			return
		}
		delete(o.pending, id)
		fn()
	})
}

// cancelLocked drops the current schedule and returns how many timers it held.
func (o *Orchestrator) cancelLocked() int {
	n := len(o.pending)
	for id, h := range o.pending {
		h.Cancel()
		delete(o.pending, id)
	}
	o.generation++
	return n
}

func (o *Orchestrator) render(e emotion.AgentEmotion) {
	if o.ch.Surface == nil {
		return
	}
	o.safeCall("surface", func() { o.ch.Surface.SetAgentEmotion(e) })
}

func (o *Orchestrator) playCue(e emotion.AgentEmotion) {
	if o.ch.Audio == nil {
		return
	}
	o.safeCall("audio", func() { o.ch.Audio.PlayEmotionCue(e) })
}

func (o *Orchestrator) pulse(p emotion.HapticPattern) {
	if o.ch.Haptics == nil {
		return
	}
	o.safeCall("haptics", func() { o.ch.Haptics.Pulse(p) })
}

func (o *Orchestrator) safeCall(channel string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("channel", channel).
				Interface("panic", r).
				Msg("Output channel panicked")
		}
	}()
	fn()
}
