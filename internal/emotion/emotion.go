// Package emotion defines the discrete emotional vocabulary shared by the
// classifiers, the reaction policy and the orchestrator.
package emotion

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEmotion is returned when a string does not name a known emotion.
var ErrUnknownEmotion = errors.New("unknown emotion")

// AgentEmotion is one of the expressive states the eye can display.
type AgentEmotion string

const (
	Calm       AgentEmotion = "calm"
	Happy      AgentEmotion = "happy"
	Excited    AgentEmotion = "excited"
	Thinking   AgentEmotion = "thinking"
	Frustrated AgentEmotion = "frustrated"
	Curious    AgentEmotion = "curious"
	Sad        AgentEmotion = "sad"
	Mad        AgentEmotion = "mad"
	Bored      AgentEmotion = "bored"
	Comfort    AgentEmotion = "comfort"
	Supportive AgentEmotion = "supportive"
)

var agentEmotions = []AgentEmotion{
	Calm, Happy, Excited, Thinking, Frustrated, Curious,
	Sad, Mad, Bored, Comfort, Supportive,
}

// AgentEmotions returns all agent emotions in declaration order.
func AgentEmotions() []AgentEmotion {
	out := make([]AgentEmotion, len(agentEmotions))
	copy(out, agentEmotions)
	return out
}

// Valid reports whether e is one of the known agent emotions.
func (e AgentEmotion) Valid() bool {
	for _, known := range agentEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// HighEnergy reports whether e gets an emphasis pulse during staged transitions.
func (e AgentEmotion) HighEnergy() bool {
	return e == Excited || e == Mad || e == Happy
}

// ParseAgentEmotion converts a string to an AgentEmotion.
func ParseAgentEmotion(s string) (AgentEmotion, error) {
	e := AgentEmotion(s)
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEmotion, s)
	}
	return e, nil
}

// UserEmotion is the emotional state inferred from user text.
type UserEmotion string

const (
	UserHappy      UserEmotion = "happy"
	UserSad        UserEmotion = "sad"
	UserFrustrated UserEmotion = "frustrated"
	UserExcited    UserEmotion = "excited"
	UserAnxious    UserEmotion = "anxious"
	UserConfused   UserEmotion = "confused"
	UserNeutral    UserEmotion = "neutral"
)

// UserEmotions returns the user emotions in scoring order. Earlier entries win
// score ties.
func UserEmotions() []UserEmotion {
	return []UserEmotion{
		UserHappy, UserSad, UserFrustrated, UserExcited,
		UserAnxious, UserConfused, UserNeutral,
	}
}

// Negative reports whether e is a state the agent must never mirror.
func (e UserEmotion) Negative() bool {
	switch e {
	case UserSad, UserFrustrated, UserAnxious, UserConfused:
		return true
	}
	return false
}

// HapticPattern names a vibration pattern understood by the haptic channel.
type HapticPattern string

const (
	PatternCalm      HapticPattern = "calm"
	PatternComfort   HapticPattern = "comfort"
	PatternPatience  HapticPattern = "patience"
	PatternCurious   HapticPattern = "curious"
	PatternMirrorJoy HapticPattern = "mirror-joy"
	PatternExcited   HapticPattern = "excited"
	PatternTick      HapticPattern = "tick"
	PatternSharp     HapticPattern = "sharp"
	PatternEmphasis  HapticPattern = "emphasis"
)

var hapticForEmotion = map[AgentEmotion]HapticPattern{
	Calm:       PatternCalm,
	Happy:      PatternMirrorJoy,
	Excited:    PatternExcited,
	Thinking:   PatternTick,
	Frustrated: PatternPatience,
	Curious:    PatternCurious,
	Sad:        PatternComfort,
	Mad:        PatternSharp,
	Bored:      PatternCalm,
	Comfort:    PatternComfort,
	Supportive: PatternPatience,
}

// HapticFor returns the pulse that accompanies a transition into e.
func HapticFor(e AgentEmotion) HapticPattern {
	if p, ok := hapticForEmotion[e]; ok {
		return p
	}
	return PatternCalm
}

// BlinkPattern names the blink cadence the render surface should use.
type BlinkPattern string

const (
	BlinkNormal  BlinkPattern = "normal"
	BlinkSlow    BlinkPattern = "slow"
	BlinkSoft    BlinkPattern = "soft"
	BlinkFlutter BlinkPattern = "flutter"
	BlinkHappy   BlinkPattern = "happy"
	BlinkRapid   BlinkPattern = "rapid"
)

var defaultTransitionDurations = map[AgentEmotion]time.Duration{
	Calm:       800 * time.Millisecond,
	Happy:      600 * time.Millisecond,
	Excited:    400 * time.Millisecond,
	Thinking:   700 * time.Millisecond,
	Frustrated: 500 * time.Millisecond,
	Curious:    600 * time.Millisecond,
	Sad:        1000 * time.Millisecond,
	Mad:        400 * time.Millisecond,
	Bored:      1200 * time.Millisecond,
	Comfort:    900 * time.Millisecond,
	Supportive: 700 * time.Millisecond,
}

// DefaultTransitionDurations returns a fresh copy of the per-emotion
// transition durations.
func DefaultTransitionDurations() map[AgentEmotion]time.Duration {
	out := make(map[AgentEmotion]time.Duration, len(defaultTransitionDurations))
	for k, v := range defaultTransitionDurations {
		out[k] = v
	}
	return out
}
