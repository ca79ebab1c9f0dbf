package policy

import (
	"testing"

	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		user   emotion.UserEmotion
		agent  emotion.AgentEmotion
		haptic emotion.HapticPattern
		blink  emotion.BlinkPattern
		color  float64
	}{
		{emotion.UserSad, emotion.Calm, emotion.PatternComfort, emotion.BlinkSlow, 0.4},
		{emotion.UserAnxious, emotion.Calm, emotion.PatternComfort, emotion.BlinkSlow, 0.4},
		{emotion.UserFrustrated, emotion.Curious, emotion.PatternPatience, emotion.BlinkSoft, 0.5},
		{emotion.UserConfused, emotion.Curious, emotion.PatternCurious, emotion.BlinkFlutter, 0.6},
		{emotion.UserHappy, emotion.Happy, emotion.PatternMirrorJoy, emotion.BlinkHappy, 0.8},
		{emotion.UserExcited, emotion.Excited, emotion.PatternMirrorJoy, emotion.BlinkRapid, 1.0},
		{emotion.UserNeutral, emotion.Calm, emotion.PatternCalm, emotion.BlinkNormal, 0.5},
		{emotion.UserEmotion("bewildered"), emotion.Calm, emotion.PatternCalm, emotion.BlinkNormal, 0.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.user), func(t *testing.T) {
			r := Lookup(tt.user)
			assert.Equal(t, tt.agent, r.AgentEmotion)
			assert.Equal(t, tt.haptic, r.HapticPattern)
			assert.Equal(t, tt.blink, r.BlinkPattern)
			assert.Equal(t, tt.color, r.ColorIntensity)
		})
	}
}

func TestLookup_NeverMirrorsNegativeStates(t *testing.T) {
	for _, u := range emotion.UserEmotions() {
		if !u.Negative() {
			continue
		}
		got := Lookup(u).AgentEmotion
		assert.Contains(t, []emotion.AgentEmotion{emotion.Calm, emotion.Curious}, got, "user %s", u)
	}
}

func TestTable_CoversEveryUserEmotion(t *testing.T) {
	tbl := Table()
	for _, u := range emotion.UserEmotions() {
		assert.Contains(t, tbl, u)
	}

	tbl[emotion.UserSad] = Reaction{AgentEmotion: emotion.Mad}
	assert.Equal(t, emotion.Calm, Lookup(emotion.UserSad).AgentEmotion)
}
