// Package runner coordinates question processing: it receives external
// triggers, admits at most one in-flight question through the processing
// gate, and sequences the session, transcript, inference, and persistence
// calls. It performs no blocking I/O on the trigger path itself.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"copilot/core"
	"copilot/session"
	"copilot/transcript"
)

const defaultInferenceTimeout = 60 * time.Second

// notQuestionNotice is shown in place of an answer when the buffered text
// does not look like an interview question.
const notQuestionNotice = "(Not identified as a question - need 4+ words with question indicators)"

// LLMService is the inference collaborator contract. GenerateAnswer consumes
// an ordered message sequence and returns the completion text; any
// non-conforming or empty response surfaces as an error.
type LLMService interface {
	core.IService
	GenerateAnswer(ctx context.Context, messages []core.LLMMessage) (string, error)
}

// Callbacks are the presentation-layer hooks. Each is invoked synchronously
// from whichever goroutine completed the relevant step; the presentation
// layer marshals to its own rendering thread if required. Any callback may
// be nil.
type Callbacks struct {
	OnSessionChanged         func(summary session.Summary)
	OnProcessingStateChanged func(isProcessing bool)
	OnAnswer                 func(question, answer string)
	OnError                  func(kind ErrorKind, message string)
}

// Config controls runner behaviour.
type Config struct {
	// InferenceTimeout bounds a single completion call. A timeout surfaces
	// as an ordinary inference error; the gate is still released.
	InferenceTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{InferenceTimeout: defaultInferenceTimeout}
}

// Runner is the top-level coordinator. Triggers arrive from the UI command
// path and from transcription readiness; completions arrive on inference
// goroutines. The gate is the sole admission control between them.
type Runner struct {
	sessions  *session.Manager
	buffer    *transcript.Buffer
	llm       LLMService
	gate      *Gate
	callbacks Callbacks
	config    Config
	logger    *core.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner wires a Runner. The gate reports state transitions through
// callbacks.OnProcessingStateChanged.
func NewRunner(
	sessions *session.Manager,
	buffer *transcript.Buffer,
	llm LLMService,
	callbacks Callbacks,
	config Config,
	logger *core.Logger,
) *Runner {
	if config.InferenceTimeout <= 0 {
		config.InferenceTimeout = defaultInferenceTimeout
	}

	r := &Runner{
		sessions:  sessions,
		buffer:    buffer,
		llm:       llm,
		callbacks: callbacks,
		config:    config,
		logger:    logger.With(map[string]interface{}{"component": "runner"}),
	}
	r.gate = NewGate(func(acquired bool) {
		if r.callbacks.OnProcessingStateChanged != nil {
			r.callbacks.OnProcessingStateChanged(acquired)
		}
	})
	return r
}

// Start initializes the inference collaborator. The context bounds the
// runner's lifetime; cancelling it aborts any in-flight completion.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	if err := r.llm.Init(r.ctx); err != nil {
		return fmt.Errorf("runner: init llm service: %w", err)
	}
	return nil
}

// Stop cancels any in-flight processing, waits for it to finish, and cleans
// up the inference collaborator.
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.llm.Cleanup()
}

// Busy reports whether a question is currently being processed.
func (r *Runner) Busy() bool {
	return r.gate.Held()
}

// StartSession creates and installs a new session from the supplied context
// fields, clearing the transcript buffer: session replacement is immediate
// and unconditional, and any in-flight transcription belongs to the old
// context.
func (r *Runner) StartSession(profile, jobContext, systemInstruction string) {
	if _, err := r.sessions.CreateSession(profile, jobContext, systemInstruction); err != nil {
		r.report(ErrorKindValidation, err.Error())
		return
	}
	r.buffer.Clear()
	r.notifySessionChanged()
}

// ClearSession discards the live session, its persisted record, and any
// buffered transcription.
func (r *Runner) ClearSession() {
	r.sessions.Clear()
	r.buffer.Clear()
	r.notifySessionChanged()
}

// ProcessNow handles a "process question" trigger from any goroutine.
//
// Preconditions (active session, non-empty buffer) are checked before the
// gate is touched, so a rejected trigger never needs a release. Once the
// gate is acquired the buffer is popped and processing continues on its own
// goroutine; the gate is released there on every exit path.
func (r *Runner) ProcessNow() {
	if r.sessions.Current() == nil {
		r.logger.Warn("no active session, cannot process question")
		r.report(ErrorKindNoSession, "no active session - start a session first")
		return
	}
	if transcript.Sanitize(r.buffer.Text()) == "" {
		r.logger.Debug("no text in buffer to process")
		r.report(ErrorKindValidation, "no question available")
		return
	}

	if !r.gate.TryAcquire() {
		r.logger.Info("already processing, ignoring trigger")
		r.report(ErrorKindBusy, "already processing")
		return
	}

	question := transcript.Sanitize(r.buffer.Pop())

	r.wg.Add(1)
	go r.process(question)
}

// process runs one gate-protected question cycle. The deferred Release is
// the single exit point for the gate: success, collaborator error, and
// every early return all pass through it.
func (r *Runner) process(question string) {
	defer r.wg.Done()
	defer r.gate.Release()

	sess := r.sessions.Current()
	if sess == nil {
		// Session was cleared between the trigger and now.
		r.report(ErrorKindNoSession, "no active session - start a session first")
		return
	}
	if question == "" {
		r.report(ErrorKindValidation, "no question available")
		return
	}

	if !transcript.IsQuestion(question) {
		r.logger.With(map[string]interface{}{"text": question}).Debug("not identified as question")
		if r.callbacks.OnAnswer != nil {
			r.callbacks.OnAnswer(question, notQuestionNotice)
		}
		return
	}

	messages, err := sess.BuildRequest(question)
	if err != nil {
		r.report(ErrorKindValidation, err.Error())
		return
	}

	r.logger.With(map[string]interface{}{
		"session_id": sess.ShortID(),
		"question":   truncate(question, 50),
	}).Info("generating answer")

	ctx, cancel := context.WithTimeout(r.ctx, r.config.InferenceTimeout)
	defer cancel()

	answer, err := r.llm.GenerateAnswer(ctx, messages)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Error("inference failed")
		r.report(ErrorKindInference, fmt.Sprintf("%v: %v", ErrInference, err))
		return
	}

	if r.callbacks.OnAnswer != nil {
		r.callbacks.OnAnswer(question, answer)
	}

	if err := r.sessions.RecordAndPersist(sess, question, answer); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) || errors.Is(err, session.ErrSessionReplaced) {
			// The session this answer belongs to is gone; the answer was
			// already delivered but must not enter the new session's history.
			r.report(ErrorKindNoSession, err.Error())
		} else {
			// The exchange stays usable in memory; only durability of the
			// latest exchange is degraded.
			r.logger.With(map[string]interface{}{"error": err}).Error("failed to persist exchange")
			r.report(ErrorKindPersistence, err.Error())
		}
		return
	}

	r.notifySessionChanged()
}

func (r *Runner) notifySessionChanged() {
	if r.callbacks.OnSessionChanged != nil {
		r.callbacks.OnSessionChanged(r.sessions.Summary())
	}
}

func (r *Runner) report(kind ErrorKind, message string) {
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(kind, message)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
