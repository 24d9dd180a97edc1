package session

import (
	"sync"
	"sync/atomic"
	"time"

	"copilot/core"
	"copilot/store"
)

const profilePreviewLen = 50

// Summary is the session metadata pushed to the presentation layer.
type Summary struct {
	SessionID      string    `json:"session_id"` // short form, first 8 chars
	CreatedAt      time.Time `json:"created_at"`
	ProfilePreview string    `json:"profile_preview"`
	HistoryCount   int       `json:"history_count"`
	Active         bool      `json:"active"`
}

// Manager owns the single live session slot and mediates all persistence.
// There is no multi-session model: creating a new session discards the old
// one from the slot. The slot is guarded by its own lock because it is read
// from both the trigger path and the presentation layer; history mutation is
// serialized separately by the runner's processing gate.
type Manager struct {
	mu      sync.RWMutex
	current *Session

	store                    store.Store
	defaultSystemInstruction string
	logger                   *core.Logger

	// answered and historyLen are read by the presentation layer outside the
	// gate-protected region, so they get their own atomic storage.
	answered   atomic.Int64
	historyLen atomic.Int32
}

// NewManager creates a Manager persisting through st. The default system
// instruction is applied when CreateSession is called with a blank one.
func NewManager(st store.Store, defaultSystemInstruction string, logger *core.Logger) *Manager {
	return &Manager{
		store:                    st,
		defaultSystemInstruction: defaultSystemInstruction,
		logger:                   logger.With(map[string]interface{}{"component": "session"}),
	}
}

// CreateSession builds a new session, installs it as current (replacing any
// prior live session), and triggers an immediate persist. The replaced
// session's history is not carried forward: switching context is a hard
// reset of conversational memory, since stale follow-up context from an
// unrelated interview would corrupt answer relevance.
//
// A failed persist is logged but does not invalidate the new session.
func (m *Manager) CreateSession(profile, jobContext, systemInstruction string) (*Session, error) {
	if systemInstruction == "" {
		systemInstruction = m.defaultSystemInstruction
	}

	s, err := New(profile, jobContext, systemInstruction)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.answered.Store(0)
	m.historyLen.Store(0)

	if err := m.persist(s); err != nil {
		m.logger.With(map[string]interface{}{"error": err}).Error("failed to save new session")
	}

	m.logger.With(map[string]interface{}{"session_id": s.ShortID()}).Info("created new session")
	return s, nil
}

// Current returns the live session, or nil when none is installed.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// RecordAndPersist records a completed exchange into session s and persists
// the updated record. s must be the session the exchange was produced under:
// when it is no longer current the exchange is discarded and
// ErrSessionReplaced is returned, so an answer computed against a replaced
// context never leaks into the new session's history. Returns
// ErrNoActiveSession when no session is live; callers must check for a
// session before issuing the inference call, not only here, to avoid wasted
// inference work.
//
// On a persist failure the exchange remains recorded in memory: the worst
// outcome is loss of the latest unsaved exchange, never corruption.
func (m *Manager) RecordAndPersist(s *Session, question, answer string) error {
	cur := m.Current()
	if cur == nil {
		return ErrNoActiveSession
	}
	if s != cur {
		return ErrSessionReplaced
	}

	cur.RecordExchange(question, answer)
	m.answered.Add(1)
	m.historyLen.Store(int32(len(cur.history)))

	return m.persist(cur)
}

// Restore attempts to rebuild the session persisted by a prior run and
// install it as current. A missing record returns nil. A malformed record is
// logged and treated as absent: restoration failure is never fatal to
// startup.
func (m *Manager) Restore() *Session {
	rec, ok, err := m.store.Load()
	if err != nil {
		m.logger.With(map[string]interface{}{"error": err}).Warn("failed to load saved session")
		return nil
	}
	if !ok {
		m.logger.Info("no saved session found")
		return nil
	}

	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		m.logger.With(map[string]interface{}{"error": err}).Warn("saved session has invalid created_at, discarding")
		return nil
	}

	history := make([]Exchange, 0, len(rec.History))
	for _, pair := range rec.History {
		history = append(history, Exchange{Question: pair[0], Answer: pair[1]})
	}

	s := Restore(rec.SessionID, rec.Profile, rec.JobContext, rec.SystemInstruction, createdAt, history)

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.answered.Store(0)
	m.historyLen.Store(int32(len(s.history)))

	m.logger.With(map[string]interface{}{
		"session_id": s.ShortID(),
		"history":    len(s.history),
	}).Info("session restored")
	return s
}

// Clear discards the live session and removes the persisted record.
// Idempotent when already empty.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.answered.Store(0)
	m.historyLen.Store(0)

	if err := m.store.Delete(); err != nil {
		m.logger.With(map[string]interface{}{"error": err}).Error("failed to remove saved session")
		return
	}
	m.logger.Info("session cleared")
}

// Answered reports the number of exchanges answered since the current
// session was installed. Safe to call from any goroutine.
func (m *Manager) Answered() int64 {
	return m.answered.Load()
}

// Summary returns presentation metadata for the current session. Safe to
// call from any goroutine; the history count comes from the manager's own
// counter rather than the session's history slice, which may be mutating
// inside the gate-protected region.
func (m *Manager) Summary() Summary {
	s := m.Current()
	if s == nil {
		return Summary{}
	}

	preview := s.Profile
	if runes := []rune(preview); len(runes) > profilePreviewLen {
		preview = string(runes[:profilePreviewLen]) + "..."
	}

	return Summary{
		SessionID:      s.ShortID(),
		CreatedAt:      s.CreatedAt,
		ProfilePreview: preview,
		HistoryCount:   int(m.historyLen.Load()),
		Active:         true,
	}
}

func (m *Manager) persist(s *Session) error {
	history := make([][2]string, 0, len(s.history))
	for _, ex := range s.history {
		history = append(history, [2]string{ex.Question, ex.Answer})
	}

	return m.store.Save(store.Record{
		SessionID:         s.ID,
		Profile:           s.Profile,
		JobContext:        s.JobContext,
		SystemInstruction: s.SystemInstruction,
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
		History:           history,
	})
}
