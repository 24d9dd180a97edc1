// Package session holds the interview context shared across question/answer
// cycles: the candidate profile, the target job context, and a short rolling
// exchange history, plus the manager that owns the single live session slot
// and mediates persistence.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"copilot/core"
)

// MaxHistory bounds the rolling exchange history. Older exchanges are evicted
// as new ones are recorded.
const MaxHistory = 3

// Exchange is one question/answer pair recorded into a session's history.
type Exchange struct {
	Question string
	Answer   string
}

// Session is one continuous interview context. Profile, job context, and
// system instruction are fixed at creation; starting over means creating a
// new Session. The prompt preamble is computed exactly once at creation so
// per-question requests carry zero context-processing cost.
//
// Session performs no internal locking. RecordExchange and BuildRequest must
// be serialized by the caller; the runner's processing gate guarantees this
// because both only happen inside the gate-protected region.
type Session struct {
	ID                string
	Profile           string
	JobContext        string
	SystemInstruction string
	CreatedAt         time.Time

	preamble []core.LLMMessage
	history  []Exchange
}

// New creates a session with a fresh ID and a precomputed preamble.
// Returns ErrEmptyContext when both profile and jobContext are blank after
// trimming; a session with no candidate context would generate generic
// answers with no grounding.
func New(profile, jobContext, systemInstruction string) (*Session, error) {
	if strings.TrimSpace(profile) == "" && strings.TrimSpace(jobContext) == "" {
		return nil, ErrEmptyContext
	}

	s := &Session{
		ID:                uuid.New().String(),
		Profile:           profile,
		JobContext:        jobContext,
		SystemInstruction: systemInstruction,
		CreatedAt:         time.Now(),
	}
	s.preamble = buildPreamble(systemInstruction, profile, jobContext)
	return s, nil
}

// Restore rebuilds a session from persisted fields. The preamble is always
// recomputed from the source fields so a format change can never leave a
// stale derived value on disk.
func Restore(id, profile, jobContext, systemInstruction string, createdAt time.Time, history []Exchange) *Session {
	s := &Session{
		ID:                id,
		Profile:           profile,
		JobContext:        jobContext,
		SystemInstruction: systemInstruction,
		CreatedAt:         createdAt,
	}
	s.preamble = buildPreamble(systemInstruction, profile, jobContext)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	s.history = append(s.history, history...)
	return s
}

// buildPreamble assembles the cached session-level messages sent ahead of
// every question: the system instruction followed by the candidate context
// and answer-style guidance.
func buildPreamble(systemInstruction, profile, jobContext string) []core.LLMMessage {
	context := fmt.Sprintf(`Context about the candidate:
%s

Job context:
%s

You will receive interview questions one at a time. Provide a concise 2-3 sentence answer that:
- Directly addresses the question
- References specific experience from the profile
- Sounds natural and conversational
- Stays under 100 words`, profile, jobContext)

	preamble := make([]core.LLMMessage, 0, 2)
	if strings.TrimSpace(systemInstruction) != "" {
		preamble = append(preamble, core.NewLLMMessage(core.LLMMessageRoleSystem, systemInstruction))
	}
	preamble = append(preamble, core.NewLLMMessage(core.LLMMessageRoleSystem, context))
	return preamble
}

// BuildRequest assembles the full message sequence for one question: the
// cached preamble, each recorded exchange in insertion order, then the
// question itself as the final user message. Pure: no state is mutated and
// repeated calls with no intervening RecordExchange yield identical output.
func (s *Session) BuildRequest(question string) ([]core.LLMMessage, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	messages := make([]core.LLMMessage, 0, len(s.preamble)+2*len(s.history)+1)
	messages = append(messages, s.preamble...)
	for _, ex := range s.history {
		messages = append(messages, core.NewLLMMessage(core.LLMMessageRoleUser, ex.Question))
		messages = append(messages, core.NewLLMMessage(core.LLMMessageRoleAssistant, ex.Answer))
	}
	messages = append(messages, core.NewLLMMessage(core.LLMMessageRoleUser, question))
	return messages, nil
}

// RecordExchange appends a question/answer pair to the history, evicting the
// oldest entry once MaxHistory is exceeded.
func (s *Session) RecordExchange(question, answer string) {
	s.history = append(s.history, Exchange{Question: question, Answer: answer})
	if len(s.history) > MaxHistory {
		s.history = s.history[len(s.history)-MaxHistory:]
	}
}

// History returns a copy of the recorded exchanges in insertion order.
func (s *Session) History() []Exchange {
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// ShortID returns the first 8 characters of the session ID, used as a
// correlation key in logs and status displays.
func (s *Session) ShortID() string {
	if len(s.ID) <= 8 {
		return s.ID
	}
	return s.ID[:8]
}
