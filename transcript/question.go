package transcript

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxQuestionLength caps the characters forwarded to inference,
	// counted in runes so truncation never splits a multibyte character.
	MaxQuestionLength = 500
	// MinQuestionWords is the minimum word count for text to be treated as
	// a complete question rather than a fragment.
	MinQuestionWords = 4
)

// questionMarkers are phrases that indicate interview-question intent.
var questionMarkers = []string{
	"what", "when", "where", "who", "why", "how",
	"can you", "could you", "would you", "will you",
	"do you", "did you", "have you", "are you", "is there",
	"tell me", "explain", "describe", "walk me through",
	"experience with", "worked on", "your background",
}

// leadIns are filler words interviewers commonly open with; they are
// stripped before checking for a question marker at the start.
var leadIns = []string{"great", "okay", "alright", "so", "now", "well", "thanks", "thank you"}

// Sanitize trims, strips control characters, and caps the length of raw
// transcription text. Returns "" when nothing usable remains.
func Sanitize(question string) string {
	question = strings.TrimSpace(question)

	var b strings.Builder
	b.Grow(len(question))
	for _, r := range question {
		if (r >= 0x00 && r <= 0x1f) || (r >= 0x7f && r <= 0x9f) {
			continue
		}
		b.WriteRune(r)
	}
	question = b.String()

	if utf8.RuneCountInString(question) > MaxQuestionLength {
		question = string([]rune(question)[:MaxQuestionLength])
	}
	if utf8.RuneCountInString(question) < 5 {
		return ""
	}
	return question
}

// IsQuestion reports whether text looks like an interview question: long
// enough to be complete, and either starting with or containing a question
// marker, or ending with a question mark.
func IsQuestion(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) < 5 {
		return false
	}

	words := strings.Fields(text)
	if len(words) < MinQuestionWords {
		return false
	}

	if len(words) > 0 {
		for _, lead := range leadIns {
			if words[0] == lead {
				text = strings.Join(words[1:], " ")
				break
			}
		}
	}

	for _, marker := range questionMarkers {
		if strings.HasPrefix(text, marker) {
			return true
		}
	}
	for _, marker := range questionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}

	return strings.HasSuffix(text, "?")
}
