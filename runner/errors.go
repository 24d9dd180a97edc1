package runner

import "errors"

// Sentinel errors for the processing loop.
var (
	// ErrBusy is returned when a trigger arrives while a question is
	// already being processed.
	ErrBusy = errors.New("already processing")
	// ErrInference wraps collaborator failures: transport errors, timeouts,
	// and malformed or empty completions.
	ErrInference = errors.New("inference failed")
)

// ErrorKind classifies an error for the presentation layer. Every failure
// surfaced through Callbacks.OnError carries one of these.
type ErrorKind string

const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindNoSession   ErrorKind = "no_session"
	ErrorKindBusy        ErrorKind = "busy"
	ErrorKindInference   ErrorKind = "inference"
	ErrorKindPersistence ErrorKind = "persistence"
)
