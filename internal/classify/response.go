package classify

import (
	"strings"

	"github.com/normanking/cortexpresence/internal/emotion"
)

// ResponseRule maps a predicate over folded response text to an emotion.
type ResponseRule struct {
	Emotion emotion.AgentEmotion
	Match   func(folded string) bool
}

func anyOf(ps ...string) func(string) bool {
	compiled := patterns(ps...)
	return func(s string) bool {
		for _, p := range compiled {
			if p.MatchString(s) {
				return true
			}
		}
		return false
	}
}

// responseRules are evaluated top to bottom and the first match wins.
// Negative emotions come first so a hedged reply ("unfortunately ... great!")
// never reads as excitement.
var responseRules = []ResponseRule{
	{emotion.Mad, anyOf(`\b(unacceptable|outrageous|furious|infuriating|absolutely not)\b`)},
	{emotion.Frustrated, anyOf(`\b(unfortunately|unable to|cannot|can't|failed|error|not possible|doesn't support)\b`)},
	{emotion.Sad, anyOf(`\b(sorry to hear|i'm sorry|that's sad|heartbreaking|condolences|your loss)\b`)},
	{emotion.Bored, anyOf(`\b(as i said|as mentioned|once again|same as before)\b`)},
	{emotion.Excited, anyOf(`\b(amazing|awesome|fantastic|incredible|exciting|wow|congratulations|congrats)\b`, `!{2,}`, `🎉|🚀`)},
	{emotion.Happy, anyOf(`\b(glad|happy to|great|good news|you're welcome|my pleasure|nice)\b`, `😊|🙂`)},
	{emotion.Supportive, anyOf(`\b(you can do|don't worry|here to help|work through|step by step|we'll figure|you've got this)\b`)},
	{emotion.Comfort, anyOf(`\b(take your time|it's okay|it's ok|that's okay|breathe|understandable|completely normal|i understand)\b`)},
	{emotion.Curious, anyOf(`\b(interesting|curious|tell me more|what do you think|could you share|which one)\b`, `\?\s*$`)},
	{emotion.Thinking, anyOf(`\b(let me think|hmm|considering|analyzing|let's see|one moment|thinking)\b`)},
}

// ResponseRules returns the ordered rule list used by ResponseEmotion.
func ResponseRules() []ResponseRule {
	out := make([]ResponseRule, len(responseRules))
	copy(out, responseRules)
	return out
}

// ResponseEmotion picks the emotion the agent shows for its own reply. It is
// total: unmatched text resolves to calm.
func ResponseEmotion(text string) emotion.AgentEmotion {
	folded := strings.ToLower(strings.ToValidUTF8(text, ""))
	for _, rule := range responseRules {
		if rule.Match(folded) {
			return rule.Emotion
		}
	}
	return emotion.Calm
}
