package emotion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentEmotions_ElevenDistinctValues(t *testing.T) {
	all := AgentEmotions()
	require.Len(t, all, 11)

	seen := make(map[AgentEmotion]bool)
	for _, e := range all {
		assert.False(t, seen[e], "duplicate emotion %s", e)
		seen[e] = true
		assert.True(t, e.Valid())
	}
}

func TestParseAgentEmotion(t *testing.T) {
	e, err := ParseAgentEmotion("curious")
	require.NoError(t, err)
	assert.Equal(t, Curious, e)

	_, err = ParseAgentEmotion("ecstatic")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEmotion))
}

func TestHighEnergy(t *testing.T) {
	for _, e := range AgentEmotions() {
		want := e == Excited || e == Mad || e == Happy
		assert.Equal(t, want, e.HighEnergy(), "emotion %s", e)
	}
}

func TestDefaultTransitionDurations_CoverAllEmotions(t *testing.T) {
	durations := DefaultTransitionDurations()
	for _, e := range AgentEmotions() {
		d, ok := durations[e]
		assert.True(t, ok, "missing duration for %s", e)
		assert.Positive(t, int64(d))
	}

	// Mutating the returned copy must not leak into later calls.
	durations[Calm] = 0
	assert.NotZero(t, DefaultTransitionDurations()[Calm])
}

func TestHapticFor_EveryEmotionHasPattern(t *testing.T) {
	for _, e := range AgentEmotions() {
		assert.NotEmpty(t, HapticFor(e))
	}
	assert.Equal(t, PatternCalm, HapticFor(AgentEmotion("unknown")))
}

func TestUserEmotion_Negative(t *testing.T) {
	assert.True(t, UserSad.Negative())
	assert.True(t, UserAnxious.Negative())
	assert.True(t, UserFrustrated.Negative())
	assert.True(t, UserConfused.Negative())
	assert.False(t, UserHappy.Negative())
	assert.False(t, UserExcited.Negative())
	assert.False(t, UserNeutral.Negative())
}
