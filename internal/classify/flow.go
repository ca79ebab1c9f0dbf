package classify

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry of the conversation stream.
type Message struct {
	Sender    Sender    `json:"sender" yaml:"sender"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Momentum describes how lively the conversation currently is.
type Momentum string

const (
	MomentumStarting Momentum = "starting"
	MomentumActive   Momentum = "active"
	MomentumSlowing  Momentum = "slowing"
	MomentumIdle     Momentum = "idle"
)

// Intent is what the user appears to be doing. The empty value means unknown.
type Intent string

const (
	IntentNone      Intent = ""
	IntentAsking    Intent = "asking"
	IntentSharing   Intent = "sharing"
	IntentThanking  Intent = "thanking"
	IntentVenting   Intent = "venting"
	IntentExploring Intent = "exploring"
)

// Tone is the register of the recent conversation.
type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneProfessional Tone = "professional"
	ToneEmotional    Tone = "emotional"
	ToneUrgent       Tone = "urgent"
)

// FlowState summarizes the conversation at one instant.
type FlowState struct {
	Momentum          Momentum `json:"momentum" yaml:"momentum"`
	UserIntent        Intent   `json:"userIntent" yaml:"userIntent"`
	AnticipationLevel float64  `json:"anticipationLevel" yaml:"anticipationLevel"`
	ConversationTone  Tone     `json:"conversationTone" yaml:"conversationTone"`
}

const (
	// MinLiveTyping is the shortest in-progress text preferred over the last message.
	MinLiveTyping = 3

	activeWindow      = 5 * time.Second
	slowingWindow     = 15 * time.Second
	toneWindow        = 5
	anticipationChars = 50
	activeAnticipate  = 0.5
)

type intentRule struct {
	intent Intent
	match  func(string) bool
}

var intentRules = []intentRule{
	{IntentThanking, anyOf(`\b(thanks|thank you|thx|ty|appreciate it|grateful)\b`)},
	{IntentAsking, anyOf(`\?`, `^(what|how|why|when|where|who|which|can|could|would|should|is|are|do|does)\b`)},
	{IntentVenting, anyOf(`\b(ugh|hate|frustrat\w*|annoy\w*|sick of|tired of|fed up|can't stand|so done)\b`)},
	{IntentExploring, anyOf(`\b(what if|maybe|idea|ideas|explore|wonder|brainstorm|imagine|alternatives?|options?)\b`)},
}

type toneRule struct {
	tone  Tone
	match func(string) bool
}

var toneRules = []toneRule{
	{ToneUrgent, anyOf(`\b(urgent|asap|immediately|emergency|right now|critical)\b`, `!{3,}`)},
	{ToneEmotional, anyOf(`\b(feel|feeling|sad|love|hate|scared|worried|upset|lonely|heartbroken)\b`)},
	{ToneProfessional, anyOf(`\b(meeting|report|client|project|invoice|proposal|regards|deadline|stakeholder|quarterly)\b`)},
}

// Flow derives the conversation flow from the message history and whatever
// the user is currently typing.
func Flow(messages []Message, typing string, now time.Time) FlowState {
	typing = strings.ToValidUTF8(typing, "")
	composing := strings.TrimSpace(typing) != ""

	state := FlowState{
		Momentum:         momentum(messages, composing, now),
		UserIntent:       intent(messages, typing),
		ConversationTone: tone(messages),
	}

	switch {
	case composing:
		state.AnticipationLevel = math.Min(float64(utf8.RuneCountInString(typing))/anticipationChars, 1)
	case state.Momentum == MomentumActive:
		state.AnticipationLevel = activeAnticipate
	}
	return state
}

func momentum(messages []Message, composing bool, now time.Time) Momentum {
	if composing {
		return MomentumActive
	}
	if len(messages) == 0 {
		return MomentumStarting
	}

	since := now.Sub(messages[len(messages)-1].Timestamp)
	switch {
	case since < activeWindow:
		return MomentumActive
	case since <= slowingWindow:
		return MomentumSlowing
	default:
		return MomentumIdle
	}
}

func intent(messages []Message, typing string) Intent {
	text := strings.TrimSpace(typing)
	if utf8.RuneCountInString(text) < MinLiveTyping {
		text = ""
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Sender == SenderUser {
				text = messages[i].Content
				break
			}
		}
		if text == "" {
			return IntentNone
		}
	}

	folded := strings.ToLower(strings.TrimSpace(text))
	for _, rule := range intentRules {
		if rule.match(folded) {
			return rule.intent
		}
	}
	return IntentSharing
}

func tone(messages []Message) Tone {
	start := max(len(messages)-toneWindow, 0)
	var sb strings.Builder
	for _, m := range messages[start:] {
		sb.WriteString(strings.ToLower(m.Content))
		sb.WriteByte(' ')
	}
	folded := sb.String()

	for _, rule := range toneRules {
		if rule.match(folded) {
			return rule.tone
		}
	}
	return ToneCasual
}
