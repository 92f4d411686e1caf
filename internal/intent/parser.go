package intent

import (
	"regexp"
	"strings"
)

// fallbackConfidence is assigned when no rule claims the message.
const fallbackConfidence = 0.5

var spaceRe = regexp.MustCompile(`\s+`)

// normalize lowercases, collapses whitespace and strips terminal
// punctuation so rule patterns see a predictable shape.
func normalize(text string) string {
	msg := strings.ToLower(strings.TrimSpace(text))
	msg = spaceRe.ReplaceAllString(msg, " ")
	return strings.TrimRight(msg, "?!. ")
}

// Parse classifies one message. It has no side effects and never fails:
// a message that matches no rule becomes a general inquiry.
func Parse(text string) Result {
	msg := normalize(text)
	if msg == "" {
		return Result{Intent: GeneralInquiry, Confidence: fallbackConfidence}
	}

	for _, r := range rules {
		if entities, ok := r.match(msg); ok {
			return Result{Intent: r.intent, Entities: entities, Confidence: r.confidence}
		}
	}

	return Result{Intent: GeneralInquiry, Confidence: fallbackConfidence}
}
