package session

import "errors"

// Sentinel errors for session operations.
var (
	// ErrEmptyContext is returned when a session is created with both the
	// profile and the job context blank.
	ErrEmptyContext = errors.New("at least one of profile or job context must be provided")
	// ErrEmptyQuestion is returned by BuildRequest for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoActiveSession is returned when an operation requires a live
	// session and none is installed.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionReplaced is returned by RecordAndPersist when the session
	// the exchange belongs to has been replaced by a newer one.
	ErrSessionReplaced = errors.New("session replaced during processing")
)
