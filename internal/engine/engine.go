// Package engine wires one presence session together: the signal collector,
// the debounced trigger, the orchestrator, the output channels and the
// conversation log. Inputs arrive through the Handle* methods and every
// observable change leaves as an event on the bus.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/normanking/cortexpresence/internal/bus"
	"github.com/normanking/cortexpresence/internal/channels"
	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/normanking/cortexpresence/internal/config"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/orchestrator"
	"github.com/normanking/cortexpresence/internal/signals"
	"github.com/normanking/cortexpresence/internal/trigger"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidInput is returned for malformed input such as an unknown action.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// actionReactions are the staged reactions to discrete events. A received
// response is handled by HandleResponse instead.
var actionReactions = map[signals.Action]emotion.AgentEmotion{
	signals.ActionSentMessage:       emotion.Thinking,
	signals.ActionError:             emotion.Sad,
	signals.ActionFileUploaded:      emotion.Curious,
	signals.ActionSuggestionClicked: emotion.Happy,
}

// Status is a point-in-time view of the session.
type Status struct {
	Emotion     emotion.AgentEmotion     `json:"emotion"`
	Pending     int                      `json:"pending"`
	LastTrigger emotion.UserEmotion      `json:"lastTrigger"`
	Context     signals.Context          `json:"context"`
	Flow        classify.FlowState       `json:"flow"`
	Messages    int                      `json:"messages"`
	Preferences config.PreferencesConfig `json:"preferences"`
}

// Engine is safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	sched  clock.Scheduler
	bus    *bus.EventBus
	logger zerolog.Logger

	collector    *signals.Collector
	orch         *orchestrator.Orchestrator
	trigger      *trigger.Trigger
	audio        *channels.Audio
	haptics      *channels.Haptics
	conversation *Conversation

	typing  string
	flow    classify.FlowState
	flowSet bool
	prefs   config.PreferencesConfig
	closed  bool
}

// New builds an engine from cfg. Events are published on eventBus.
func New(cfg *config.Config, eventBus *bus.EventBus, sched clock.Scheduler, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	orchCfg := cfg.Engine.Orchestrator()
	transitions := emotion.DefaultTransitionDurations()
	for e, d := range orchCfg.TransitionDurations {
		transitions[e] = d
	}
	surface := channels.NewSurface(eventBus, sched, transitions)
	audio := channels.NewAudio(eventBus, sched, cfg.Preferences.SoundEnabled)
	haptics := channels.NewHaptics(eventBus, sched, cfg.Preferences.HapticsEnabled)

	orch, err := orchestrator.New(orchCfg, orchestrator.Channels{
		Surface: surface,
		Audio:   audio,
		Haptics: haptics,
	}, sched, logger)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	trig, err := trigger.New(cfg.Engine.Trigger(), orch, haptics, sched, logger)
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}

	e := &Engine{
		sched:     sched,
		bus:       eventBus,
		logger:    logger.With().Str("component", "engine").Logger(),
		collector: signals.NewCollector(cfg.Engine.Signals(), sched, logger),
		orch:      orch,
		trigger:   trig,
		audio:     audio,
		haptics:   haptics,
		conversation: NewConversation(ConversationConfig{
			MaxMessages: cfg.Engine.MaxMessages,
		}, sched),
		prefs: cfg.Preferences,
	}

	e.collector.OnChange(e.onContextChanged)
	trig.OnEvaluation(e.onEvaluation)
	return e, nil
}

// Start begins signal sampling.
func (e *Engine) Start() {
	e.collector.Start()
	e.logger.Info().Msg("Presence engine started")
}

// Close stops every timer. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.trigger.Close()
	e.collector.Stop()
	err := e.orch.Close()
	e.logger.Info().Msg("Presence engine stopped")
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// HandleKeystroke records a key press.
func (e *Engine) HandleKeystroke(deletion bool) {
	e.collector.RecordKeystroke(deletion)
}

// HandlePointer records a pointer sample.
func (e *Engine) HandlePointer(x, y float64) {
	e.collector.RecordPointer(x, y)
}

// SetAnchor registers the eye's position for pointer tracking.
func (e *Engine) SetAnchor(x, y float64) {
	e.collector.SetAnchor(x, y)
}

// ClearAnchor stops pointer tracking.
func (e *Engine) ClearAnchor() {
	e.collector.ClearAnchor()
}

// SetMode records the UI mode.
func (e *Engine) SetMode(mode string) {
	e.collector.SetMode(mode)
}

// SetActiveResponse records whether a response is streaming.
func (e *Engine) SetActiveResponse(active bool) {
	e.collector.SetActiveResponse(active)
}

// HandleTyping feeds the current input text to the debounced trigger.
func (e *Engine) HandleTyping(text string) {
	if e.isClosed() {
		return
	}
	e.mu.Lock()
	e.typing = text
	e.mu.Unlock()

	e.trigger.Update(text)
	e.Flow()
}

// HandleAction records a discrete event and plays its staged reaction.
func (e *Engine) HandleAction(action signals.Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	if e.isClosed() {
		return ErrClosed
	}

	e.collector.RecordAction(action)
	if action == signals.ActionSentMessage {
		e.collector.SetWaitingForResponse(true)
	}

	target, ok := actionReactions[action]
	if !ok {
		return nil
	}
	if _, err := e.orch.Request(orchestrator.Request{Target: target}); err != nil {
		return fmt.Errorf("react to %s: %w", action, err)
	}
	return nil
}

// AppendMessage adds a message to the conversation log.
func (e *Engine) AppendMessage(msg classify.Message) error {
	if e.isClosed() {
		return ErrClosed
	}
	if err := e.conversation.Append(msg); err != nil {
		return err
	}
	e.collector.SetMessageCount(e.conversation.Count())
	e.Flow()
	return nil
}

// HandleResponse classifies a completed agent response, logs it and shows
// its emotion immediately, bypassing the debounced trigger.
func (e *Engine) HandleResponse(text string) (emotion.AgentEmotion, error) {
	if e.isClosed() {
		return "", ErrClosed
	}
	target := classify.ResponseEmotion(text)

	if err := e.conversation.Append(classify.Message{Sender: classify.SenderAgent, Content: text}); err != nil {
		return "", err
	}
	e.collector.SetMessageCount(e.conversation.Count())
	e.collector.SetActiveResponse(false)
	e.collector.SetWaitingForResponse(false)
	e.collector.RecordAction(signals.ActionReceivedResponse)

	e.bus.PublishSync(bus.NewEvent(bus.EventTypeResponseClassified, e.sched.Now(), map[string]any{
		"emotion": string(target),
	}))

	if _, err := e.orch.Request(orchestrator.Request{Target: target, Immediate: true}); err != nil {
		return target, fmt.Errorf("show response emotion: %w", err)
	}
	e.Flow()
	return target, nil
}

// Reset returns the agent to calm and forgets the last triggering emotion.
func (e *Engine) Reset() error {
	if err := e.orch.ResetToCalm(); err != nil {
		return err
	}
	e.trigger.ResetEmpathy()
	return nil
}

// ApplyPreferences switches sound and haptics on or off.
func (e *Engine) ApplyPreferences(p config.PreferencesConfig) {
	e.mu.Lock()
	changed := e.prefs != p
	e.prefs = p
	e.mu.Unlock()

	e.audio.SetEnabled(p.SoundEnabled)
	e.haptics.SetEnabled(p.HapticsEnabled)

	if !changed {
		return
	}
	e.logger.Info().
		Bool("sound", p.SoundEnabled).
		Bool("haptics", p.HapticsEnabled).
		Msg("Preferences updated")
	e.bus.PublishSync(bus.NewEvent(bus.EventTypePreferencesChanged, e.sched.Now(), map[string]any{
		"soundEnabled":   p.SoundEnabled,
		"hapticsEnabled": p.HapticsEnabled,
	}))
}

// Preferences returns the active preferences.
func (e *Engine) Preferences() config.PreferencesConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs
}

// Flow recomputes the conversation flow and publishes it when it changed.
func (e *Engine) Flow() classify.FlowState {
	messages := e.conversation.Messages()

	e.mu.Lock()
	state := classify.Flow(messages, e.typing, e.sched.Now())
	changed := !e.flowSet || state != e.flow
	e.flow = state
	e.flowSet = true
	e.mu.Unlock()

	if changed {
		e.bus.PublishSync(bus.NewEvent(bus.EventTypeFlowChanged, e.sched.Now(), map[string]any{
			"momentum":          string(state.Momentum),
			"userIntent":        string(state.UserIntent),
			"anticipationLevel": state.AnticipationLevel,
			"conversationTone":  string(state.ConversationTone),
		}))
	}
	return state
}

// Messages returns the conversation log.
func (e *Engine) Messages() []classify.Message {
	return e.conversation.Messages()
}

// Status reports the current session state.
func (e *Engine) Status() Status {
	orch := e.orch.Current()

	e.mu.Lock()
	flow, prefs := e.flow, e.prefs
	e.mu.Unlock()

	return Status{
		Emotion:     orch.Emotion,
		Pending:     orch.Pending,
		LastTrigger: e.trigger.LastEmotion(),
		Context:     e.collector.Snapshot(),
		Flow:        flow,
		Messages:    e.conversation.Count(),
		Preferences: prefs,
	}
}

func (e *Engine) onContextChanged(ctx signals.Context) {
	e.bus.PublishSync(bus.NewEvent(bus.EventTypeContextChanged, e.sched.Now(), ctx.Fields()))
	if !e.isClosed() {
		e.Flow()
	}
}

func (e *Engine) onEvaluation(ev trigger.Evaluation) {
	e.bus.PublishSync(bus.NewEvent(bus.EventTypeUserClassified, e.sched.Now(), map[string]any{
		"emotion":        string(ev.Result.Emotion),
		"intensity":      ev.Result.Intensity,
		"indicators":     ev.Result.Indicators,
		"agentEmotion":   string(ev.Reaction.AgentEmotion),
		"hapticPattern":  string(ev.Reaction.HapticPattern),
		"blinkPattern":   string(ev.Reaction.BlinkPattern),
		"colorIntensity": ev.Reaction.ColorIntensity,
		"triggered":      ev.Triggered,
	}))
}
