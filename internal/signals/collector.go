// Package signals samples raw interaction events into a decaying Context
// snapshot. It describes what the user is doing and never reacts to it.
package signals

import (
	"math"
	"sync"
	"time"

	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/rs/zerolog"
)

// Action is a discrete event reported by the caller.
type Action string

const (
	ActionNone              Action = "none"
	ActionSentMessage       Action = "sent_message"
	ActionReceivedResponse  Action = "received_response"
	ActionSuggestionClicked Action = "suggestion_clicked"
	ActionFileUploaded      Action = "file_uploaded"
	ActionModeChanged       Action = "mode_changed"
	ActionError             Action = "error"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionSentMessage, ActionReceivedResponse, ActionSuggestionClicked,
		ActionFileUploaded, ActionModeChanged, ActionError:
		return true
	}
	return false
}

// Context is a read-only snapshot of the user's interaction state.
type Context struct {
	TypingSpeed         float64       `json:"typingSpeed"` // chars/sec over the trailing window
	TypingPauseDuration time.Duration `json:"typingPauseDuration"`
	DeletionCount       int           `json:"deletionCount"`

	PointerDistanceFromAnchor float64       `json:"pointerDistanceFromAnchor"`
	IsPointerIdle             bool          `json:"isPointerIdle"`
	IdleDuration              time.Duration `json:"idleDuration"`

	CurrentMode         string        `json:"currentMode"`
	LastAction          Action        `json:"lastAction"`
	TimeSinceLastAction time.Duration `json:"timeSinceLastAction"`

	MessageCount         int  `json:"messageCount"`
	HasActiveResponse    bool `json:"hasActiveResponse"`
	IsWaitingForResponse bool `json:"isWaitingForResponse"`
}

// Fields flattens the snapshot for event payloads, with durations in ms.
func (c Context) Fields() map[string]any {
	return map[string]any{
		"typingSpeed":               c.TypingSpeed,
		"typingPauseMs":             c.TypingPauseDuration.Milliseconds(),
		"deletionCount":             c.DeletionCount,
		"pointerDistanceFromAnchor": c.PointerDistanceFromAnchor,
		"isPointerIdle":             c.IsPointerIdle,
		"idleMs":                    c.IdleDuration.Milliseconds(),
		"currentMode":               c.CurrentMode,
		"lastAction":                string(c.LastAction),
		"timeSinceLastActionMs":     c.TimeSinceLastAction.Milliseconds(),
		"messageCount":              c.MessageCount,
		"hasActiveResponse":         c.HasActiveResponse,
		"isWaitingForResponse":      c.IsWaitingForResponse,
	}
}

// materiallyDiffers compares two snapshots at the resolution consumers care
// about: 0.1 chars/sec, whole pixels and whole seconds.
func materiallyDiffers(a, b Context) bool {
	round1 := func(f float64) float64 { return math.Round(f*10) / 10 }
	secs := func(d time.Duration) int64 { return int64(d / time.Second) }

	return round1(a.TypingSpeed) != round1(b.TypingSpeed) ||
		secs(a.TypingPauseDuration) != secs(b.TypingPauseDuration) ||
		a.DeletionCount != b.DeletionCount ||
		math.Round(a.PointerDistanceFromAnchor) != math.Round(b.PointerDistanceFromAnchor) ||
		a.IsPointerIdle != b.IsPointerIdle ||
		secs(a.IdleDuration) != secs(b.IdleDuration) ||
		a.CurrentMode != b.CurrentMode ||
		a.LastAction != b.LastAction ||
		secs(a.TimeSinceLastAction) != secs(b.TimeSinceLastAction) ||
		a.MessageCount != b.MessageCount ||
		a.HasActiveResponse != b.HasActiveResponse ||
		a.IsWaitingForResponse != b.IsWaitingForResponse
}

// Config tunes the collector's sampling.
type Config struct {
	TickInterval     time.Duration
	TypingWindow     time.Duration
	DeletionCooldown time.Duration
	PointerIdleAfter time.Duration
	PointerThrottle  time.Duration
}

// DefaultConfig returns the standard sampling parameters.
func DefaultConfig() Config {
	return Config{
		TickInterval:     500 * time.Millisecond,
		TypingWindow:     5 * time.Second,
		DeletionCooldown: 3 * time.Second,
		PointerIdleAfter: 2 * time.Second,
		PointerThrottle:  200 * time.Millisecond,
	}
}

// maxKeystrokes bounds the rolling keystroke buffer.
const maxKeystrokes = 512

type point struct{ x, y float64 }

// Collector owns the Context. All mutation happens here; readers get copies.
type Collector struct {
	mu     sync.Mutex
	cfg    Config
	sched  clock.Scheduler
	logger zerolog.Logger

	snapshot Context
	current  Context

	keystrokes    []time.Time
	lastKeystroke time.Time

	pointer           *point
	anchor            *point
	lastPointerSample time.Time
	lastPointerMove   time.Time

	lastActionAt time.Time
	lastActivity time.Time

	tick      clock.Handle
	running   bool
	listeners []func(Context)
}

// NewCollector creates a collector. Zero config fields take defaults.
func NewCollector(cfg Config, sched clock.Scheduler, logger zerolog.Logger) *Collector {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = def.TypingWindow
	}
	if cfg.DeletionCooldown <= 0 {
		cfg.DeletionCooldown = def.DeletionCooldown
	}
	if cfg.PointerIdleAfter <= 0 {
		cfg.PointerIdleAfter = def.PointerIdleAfter
	}
	if cfg.PointerThrottle <= 0 {
		cfg.PointerThrottle = def.PointerThrottle
	}

	now := sched.Now()
	initial := Context{LastAction: ActionNone}
	return &Collector{
		cfg:          cfg,
		sched:        sched,
		logger:       logger.With().Str("component", "signals").Logger(),
		snapshot:     initial,
		current:      initial,
		lastActivity: now,
	}
}

// OnChange registers fn to receive every republished snapshot.
func (c *Collector) OnChange(fn func(Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns the last published Context.
func (c *Collector) Snapshot() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Start begins the resampling tick.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.tick = c.sched.Schedule(c.cfg.TickInterval, c.onTick)
	c.logger.Debug().Dur("interval", c.cfg.TickInterval).Msg("Signal collector started")
}

// Stop cancels the resampling tick.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	if c.tick != nil {
		c.tick.Cancel()
		c.tick = nil
	}
	c.logger.Debug().Msg("Signal collector stopped")
}

func (c *Collector) onTick() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.resampleLocked(c.sched.Now())
	c.tick = c.sched.Schedule(c.cfg.TickInterval, c.onTick)
	snap, listeners := c.publishLocked()
	c.mu.Unlock()

	notify(snap, listeners)
}

// RecordKeystroke registers a key press. Deletions also bump DeletionCount.
func (c *Collector) RecordKeystroke(deletion bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.sched.Now()
	c.keystrokes = append(c.keystrokes, now)
	if len(c.keystrokes) > maxKeystrokes {
		c.keystrokes = c.keystrokes[len(c.keystrokes)-maxKeystrokes:]
	}
	c.lastKeystroke = now
	c.lastActivity = now
	if deletion {
		c.current.DeletionCount++
	}
}

// RecordPointer registers a pointer sample. Samples closer than the throttle
// interval to the previous accepted sample are dropped.
func (c *Collector) RecordPointer(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.sched.Now()
	if !c.lastPointerSample.IsZero() && now.Sub(c.lastPointerSample) < c.cfg.PointerThrottle {
		return
	}
	c.lastPointerSample = now
	c.lastPointerMove = now
	c.lastActivity = now
	c.pointer = &point{x: x, y: y}
}

// SetAnchor registers the pointer-tracking target (the eye's position).
func (c *Collector) SetAnchor(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = &point{x: x, y: y}
}

// ClearAnchor unregisters the pointer-tracking target.
func (c *Collector) ClearAnchor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = nil
}

// RecordAction stamps a discrete event immediately, without waiting for the
// next tick.
func (c *Collector) RecordAction(action Action) {
	c.mu.Lock()
	now := c.sched.Now()
	c.lastActionAt = now
	c.lastActivity = now
	c.current.LastAction = action
	c.current.TimeSinceLastAction = 0
	c.current.IdleDuration = 0
	snap, listeners := c.publishLocked()
	c.mu.Unlock()

	notify(snap, listeners)
}

// SetMode records the current UI mode.
func (c *Collector) SetMode(mode string) {
	c.update(func(ctx *Context) { ctx.CurrentMode = mode })
}

// SetMessageCount records the conversation length.
func (c *Collector) SetMessageCount(n int) {
	c.update(func(ctx *Context) { ctx.MessageCount = n })
}

// SetActiveResponse records whether a response is streaming.
func (c *Collector) SetActiveResponse(active bool) {
	c.update(func(ctx *Context) { ctx.HasActiveResponse = active })
}

// SetWaitingForResponse records whether the user awaits a reply.
func (c *Collector) SetWaitingForResponse(waiting bool) {
	c.update(func(ctx *Context) { ctx.IsWaitingForResponse = waiting })
}

func (c *Collector) update(mutate func(*Context)) {
	c.mu.Lock()
	mutate(&c.current)
	snap, listeners := c.publishLocked()
	c.mu.Unlock()

	notify(snap, listeners)
}

func (c *Collector) resampleLocked(now time.Time) {
	c.resampleTyping(now)
	c.resamplePointer(now)

	c.current.IdleDuration = now.Sub(c.lastActivity)
	if !c.lastActionAt.IsZero() {
		c.current.TimeSinceLastAction = now.Sub(c.lastActionAt)
	}
}

func (c *Collector) resampleTyping(now time.Time) {
	if c.lastKeystroke.IsZero() {
		c.current.TypingSpeed = 0
		c.current.TypingPauseDuration = 0
		return
	}

	inactive := now.Sub(c.lastKeystroke)
	c.current.TypingPauseDuration = inactive

	if inactive > c.cfg.DeletionCooldown && c.current.DeletionCount > 0 {
		c.current.DeletionCount--
	}

	if inactive > c.cfg.TypingWindow {
		c.keystrokes = c.keystrokes[:0]
		c.current.TypingSpeed = 0
		return
	}

	cutoff := now.Add(-c.cfg.TypingWindow)
	i := 0
	for i < len(c.keystrokes) && c.keystrokes[i].Before(cutoff) {
		i++
	}
	c.keystrokes = c.keystrokes[i:]
	if len(c.keystrokes) == 0 {
		c.current.TypingSpeed = 0
		return
	}

	span := now.Sub(c.keystrokes[0])
	if span < time.Second {
		span = time.Second
	}
	c.current.TypingSpeed = float64(len(c.keystrokes)) / span.Seconds()
}

func (c *Collector) resamplePointer(now time.Time) {
	if c.anchor == nil {
		return
	}
	if c.pointer != nil {
		c.current.PointerDistanceFromAnchor = math.Hypot(c.pointer.x-c.anchor.x, c.pointer.y-c.anchor.y)
	}
	c.current.IsPointerIdle = c.lastPointerMove.IsZero() || now.Sub(c.lastPointerMove) >= c.cfg.PointerIdleAfter
}

// publishLocked promotes current to the snapshot when it materially changed.
func (c *Collector) publishLocked() (Context, []func(Context)) {
	if !materiallyDiffers(c.snapshot, c.current) {
		return Context{}, nil
	}
	c.snapshot = c.current
	listeners := make([]func(Context), len(c.listeners))
	copy(listeners, c.listeners)
	return c.snapshot, listeners
}

func notify(snap Context, listeners []func(Context)) {
	for _, fn := range listeners {
		fn(snap)
	}
}
