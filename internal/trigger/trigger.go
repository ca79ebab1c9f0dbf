package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/orchestrator"
	"github.com/normanking/cortexpresence/internal/policy"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig wraps every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid trigger config")

// Requester is the part of the orchestrator the trigger drives.
type Requester interface {
	Request(req orchestrator.Request) (bool, error)
}

// Config tunes the trigger.
type Config struct {
	DebounceInterval      time.Duration
	MinTextLength         int
	SignificanceThreshold float64
	HapticSpacing         time.Duration
	// SkipSound keeps typing reactions silent; cues come from responses.
	SkipSound bool
}

// DefaultConfig returns the standard trigger parameters.
func DefaultConfig() Config {
	return Config{
		DebounceInterval:      400 * time.Millisecond,
		MinTextLength:         3,
		SignificanceThreshold: 0.3,
		HapticSpacing:         800 * time.Millisecond,
		SkipSound:             true,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	switch {
	case c.DebounceInterval <= 0:
		return fmt.Errorf("%w: debounce interval must be positive, got %v", ErrInvalidConfig, c.DebounceInterval)
	case c.HapticSpacing <= 0:
		return fmt.Errorf("%w: haptic spacing must be positive, got %v", ErrInvalidConfig, c.HapticSpacing)
	case c.MinTextLength < 0:
		return fmt.Errorf("%w: min text length %d is negative", ErrInvalidConfig, c.MinTextLength)
	case c.SignificanceThreshold < 0 || c.SignificanceThreshold > 1:
		return fmt.Errorf("%w: significance threshold %v outside [0,1]", ErrInvalidConfig, c.SignificanceThreshold)
	}
	return nil
}

// Evaluation describes one settled classification.
type Evaluation struct {
	Text      string                        `json:"text"`
	Result    classify.ClassificationResult `json:"result"`
	Reaction  policy.Reaction               `json:"reaction"`
	Triggered bool                          `json:"triggered"`
}

// Trigger is the debounced path from typing to the orchestrator.
type Trigger struct {
	mu      sync.Mutex
	cfg     Config
	orch    Requester
	haptics orchestrator.HapticChannel
	logger  zerolog.Logger

	debouncer *Debouncer
	gate      *Gate

	// last is the emotion that most recently caused a trigger; empty means none.
	last         emotion.UserEmotion
	onEvaluation func(Evaluation)
	closed       bool
}

// New creates a trigger. haptics may be nil.
func New(cfg Config, orch Requester, haptics orchestrator.HapticChannel, sched clock.Scheduler, logger zerolog.Logger) (*Trigger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trigger{
		cfg:       cfg,
		orch:      orch,
		haptics:   haptics,
		logger:    logger.With().Str("component", "trigger").Logger(),
		debouncer: NewDebouncer(sched, cfg.DebounceInterval),
		gate:      NewGate(sched, cfg.HapticSpacing),
	}, nil
}

// OnEvaluation registers fn to observe every settled classification.
func (t *Trigger) OnEvaluation(fn func(Evaluation)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvaluation = fn
}

// Update feeds the current input text.
func (t *Trigger) Update(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.debouncer.Cancel()

	if utf8.RuneCountInString(strings.TrimSpace(text)) < t.cfg.MinTextLength {
		if t.last != emotion.UserNeutral {
			t.logger.Debug().Str("from", string(t.last)).Msg("Input cleared, back to neutral")
			t.last = emotion.UserNeutral
		}
		return
	}

	t.debouncer.Trigger(func() { t.evaluate(text) })
}

// ResetEmpathy forgets the last triggering emotion.
func (t *Trigger) ResetEmpathy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = ""
}

// LastEmotion returns the emotion that most recently caused a trigger.
func (t *Trigger) LastEmotion() emotion.UserEmotion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Close cancels the pending debounce. Further updates are ignored.
func (t *Trigger) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.debouncer.Cancel()
}

func (t *Trigger) evaluate(text string) {
	res := classify.UserEmotion(text)
	reaction := policy.Lookup(res.Emotion)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	triggered := res.Emotion != t.last && res.Intensity > t.cfg.SignificanceThreshold
	if triggered {
		t.last = res.Emotion
	}
	hook := t.onEvaluation
	t.mu.Unlock()

	t.logger.Debug().
		Str("emotion", string(res.Emotion)).
		Float64("intensity", res.Intensity).
		Bool("triggered", triggered).
		Msg("Classified input")

	if hook != nil {
		hook(Evaluation{Text: text, Result: res, Reaction: reaction, Triggered: triggered})
	}
	if !triggered {
		return
	}

	if _, err := t.orch.Request(orchestrator.Request{
		Target:     reaction.AgentEmotion,
		SkipSound:  t.cfg.SkipSound,
		SkipHaptic: true,
	}); err != nil {
		t.logger.Warn().Err(err).Str("target", string(reaction.AgentEmotion)).Msg("Orchestrator rejected reaction")
	}

	if t.haptics != nil && t.gate.Allow() {
		t.haptics.Pulse(reaction.HapticPattern)
	}
}
