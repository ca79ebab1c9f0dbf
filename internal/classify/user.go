// Package classify holds the keyword and pattern heuristics that turn text
// into emotions, intents and conversational tone. Every function here is pure.
package classify

import (
	"math"
	"regexp"
	"strings"

	"github.com/normanking/cortexpresence/internal/emotion"
)

// ClassificationResult is the outcome of classifying one piece of user text.
type ClassificationResult struct {
	Emotion    emotion.UserEmotion `json:"emotion" yaml:"emotion"`
	Intensity  float64             `json:"intensity" yaml:"intensity"`
	Indicators []string            `json:"indicators" yaml:"indicators"`
}

const (
	keywordWeight = 1.0
	patternWeight = 0.5
	neutralBase   = 0.1
	intensityDiv  = 3.0
	boosterStep   = 0.2
)

type lexicon struct {
	emotion  emotion.UserEmotion
	keywords []*regexp.Regexp
	patterns []*regexp.Regexp
}

func words(ws ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(ws))
	for _, w := range ws {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

func patterns(ps ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(ps))
	for _, p := range ps {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var lexicons = []lexicon{
	{
		emotion: emotion.UserHappy,
		keywords: words("happy", "glad", "great", "good", "nice", "love", "awesome",
			"wonderful", "pleased", "yay", "cool", "perfect", "thanks", "thank you"),
		patterns: patterns(`:\)|:-\)|😊|🙂|😀|😄`, `\b(it|this|that) works\b`, `\b(love|like) (it|this|that)\b`),
	},
	{
		emotion: emotion.UserSad,
		keywords: words("sad", "unhappy", "depressed", "lonely", "cry", "crying", "miss",
			"heartbroken", "hopeless", "upset", "down"),
		patterns: patterns(`:\(|:-\(|😢|😭|☹`, `\b(i feel|feeling) (so |really )?(bad|down|low|empty)\b`, `\bnobody (cares|understands)\b`),
	},
	{
		emotion: emotion.UserFrustrated,
		keywords: words("frustrated", "frustrating", "annoyed", "annoying", "ugh", "argh",
			"useless", "broken", "stupid", "hate", "ridiculous", "sick of", "fed up",
			"not working", "doesn't work"),
		patterns: patterns(`\bnothing (works|is working|helps)\b`, `\bwhy (won't|doesn't|isn't|can't) (it|this)\b`,
			`\b(still|again) (not|broken|failing)\b`, `😤|😠|😡`),
	},
	{
		emotion: emotion.UserExcited,
		keywords: words("excited", "amazing", "incredible", "wow", "can't wait", "cant wait",
			"omg", "fantastic", "thrilled", "woohoo", "let's go"),
		patterns: patterns(`\b(so|really) (excited|pumped|stoked|hyped)\b`, `🎉|🚀|🤩|😍`),
	},
	{
		emotion: emotion.UserAnxious,
		keywords: words("anxious", "worried", "nervous", "scared", "afraid", "stress",
			"stressed", "panic", "overwhelmed", "deadline"),
		patterns: patterns(`\bwhat if\b`, `\b(i'm|im|i am) (so |really )?(worried|scared|nervous)\b`, `😰|😟|😨`),
	},
	{
		emotion: emotion.UserConfused,
		keywords: words("confused", "confusing", "don't understand", "dont understand",
			"lost", "unclear", "makes no sense", "what do you mean", "huh"),
		patterns: patterns(`\?{2,}`, `\b(i'm|im|i am) (so |really |totally )?(confused|lost)\b`,
			`\b(what|how) (does|do|is) (this|that|it) (mean|work)\b`, `🤔|😕`),
	},
}

// boosters raise intensity by boosterStep each when present. The caps run is
// matched against the original text; the others against the folded text.
var (
	repeatedPunct = regexp.MustCompile(`[!?]{2,}`)
	capsRun       = regexp.MustCompile(`\b[A-Z]{3,}\b`)
	intensifiers  = regexp.MustCompile(`\b(so|very|really|extremely|totally|super|absolutely)\b`)
)

// UserEmotion scores text against every lexicon and returns the strongest
// emotion. Unmatched text resolves to neutral.
func UserEmotion(text string) ClassificationResult {
	original := strings.ToValidUTF8(text, "")
	folded := strings.ToLower(original)

	scores := make(map[emotion.UserEmotion]float64, len(lexicons)+1)
	hits := make(map[emotion.UserEmotion][]string, len(lexicons))
	scores[emotion.UserNeutral] = neutralBase

	for _, lex := range lexicons {
		for _, kw := range lex.keywords {
			if m := kw.FindString(folded); m != "" {
				scores[lex.emotion] += keywordWeight
				hits[lex.emotion] = append(hits[lex.emotion], m)
			}
		}
		for _, p := range lex.patterns {
			matches := p.FindAllString(folded, -1)
			if len(matches) == 0 {
				continue
			}
			scores[lex.emotion] += patternWeight * float64(len(matches))
			hits[lex.emotion] = append(hits[lex.emotion], matches...)
		}
	}

	best := emotion.UserNeutral
	bestScore := -1.0
	for _, e := range emotion.UserEmotions() {
		if scores[e] > bestScore {
			best = e
			bestScore = scores[e]
		}
	}

	indicators := hits[best]
	intensity := math.Min(bestScore/intensityDiv, 1)

	if m := repeatedPunct.FindString(folded); m != "" {
		intensity += boosterStep
		indicators = append(indicators, m)
	}
	if m := capsRun.FindString(original); m != "" {
		intensity += boosterStep
		indicators = append(indicators, m)
	}
	if m := intensifiers.FindString(folded); m != "" {
		intensity += boosterStep
		indicators = append(indicators, m)
	}

	return ClassificationResult{
		Emotion:    best,
		Intensity:  math.Min(intensity, 1),
		Indicators: dedupe(indicators),
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
