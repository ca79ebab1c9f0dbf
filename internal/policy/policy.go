// Package policy maps a classified user emotion to the agent's reaction.
package policy

import "github.com/normanking/cortexpresence/internal/emotion"

// Reaction is the agent's answer to a user emotion.
type Reaction struct {
	AgentEmotion   emotion.AgentEmotion  `json:"agentEmotion" yaml:"agentEmotion"`
	HapticPattern  emotion.HapticPattern `json:"hapticPattern" yaml:"hapticPattern"`
	BlinkPattern   emotion.BlinkPattern  `json:"blinkPattern" yaml:"blinkPattern"`
	ColorIntensity float64               `json:"colorIntensity" yaml:"colorIntensity"`
}

var neutral = Reaction{
	AgentEmotion:   emotion.Calm,
	HapticPattern:  emotion.PatternCalm,
	BlinkPattern:   emotion.BlinkNormal,
	ColorIntensity: 0.5,
}

// Negative user states are answered with calm or curiosity, never mirrored.
var table = map[emotion.UserEmotion]Reaction{
	emotion.UserSad:        {emotion.Calm, emotion.PatternComfort, emotion.BlinkSlow, 0.4},
	emotion.UserAnxious:    {emotion.Calm, emotion.PatternComfort, emotion.BlinkSlow, 0.4},
	emotion.UserFrustrated: {emotion.Curious, emotion.PatternPatience, emotion.BlinkSoft, 0.5},
	emotion.UserConfused:   {emotion.Curious, emotion.PatternCurious, emotion.BlinkFlutter, 0.6},
	emotion.UserHappy:      {emotion.Happy, emotion.PatternMirrorJoy, emotion.BlinkHappy, 0.8},
	emotion.UserExcited:    {emotion.Excited, emotion.PatternMirrorJoy, emotion.BlinkRapid, 1.0},
	emotion.UserNeutral:    neutral,
}

// Lookup returns the reaction for u. Unknown emotions get the neutral reaction.
func Lookup(u emotion.UserEmotion) Reaction {
	if r, ok := table[u]; ok {
		return r
	}
	return neutral
}

// Table returns a copy of the full mapping.
func Table() map[emotion.UserEmotion]Reaction {
	out := make(map[emotion.UserEmotion]Reaction, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}
