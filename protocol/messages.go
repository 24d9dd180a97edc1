package protocol

import "encoding/json"

// MessageType enumerates all UI channel message types.
type MessageType string

const (
	// Server -> UI
	MsgSessionStatus     MessageType = "session_status"
	MsgProcessingState   MessageType = "processing_state"
	MsgPartialTranscript MessageType = "partial_transcript"
	MsgAudioLevel        MessageType = "audio_level"
	MsgAnswer            MessageType = "answer"
	MsgError             MessageType = "error"

	// UI -> Server
	MsgStartSession      MessageType = "start_session"
	MsgProcessNow        MessageType = "process_now"
	MsgClearSession      MessageType = "clear_session"
	MsgClearBuffer       MessageType = "clear_buffer"
	MsgTranscriptSegment MessageType = "transcript_segment"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Server -> UI payloads ---

// SessionStatusPayload describes the current session, if any.
type SessionStatusPayload struct {
	SessionID      string `json:"session_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	ProfilePreview string `json:"profile_preview,omitempty"`
	HistoryCount   int    `json:"history_count"`
	Active         bool   `json:"active"`
}

// ProcessingStatePayload reports whether an answer is being computed.
type ProcessingStatePayload struct {
	Processing bool `json:"processing"`
}

// PartialTranscriptPayload carries the accumulated transcript preview.
type PartialTranscriptPayload struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// AudioLevelPayload carries the input level of the most recent audio frame
// for the UI meter.
type AudioLevelPayload struct {
	// Level is the frame's RMS level normalized to [0, 1].
	Level float64 `json:"level"`
}

// AnswerPayload carries a completed question and its answer.
type AnswerPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ErrorPayload reports a failed operation to the UI.
type ErrorPayload struct {
	Kind    string `json:"kind"` // "validation", "no_session", "busy", "inference", "persistence"
	Message string `json:"message"`
}

// --- UI -> Server payloads ---

// StartSessionPayload begins a new session with interview context.
type StartSessionPayload struct {
	Profile           string `json:"profile"`
	JobContext        string `json:"job_context"`
	SystemInstruction string `json:"system_instruction,omitempty"`
}

// ProcessNowPayload requests that the buffered transcript be answered.
type ProcessNowPayload struct{}

// ClearSessionPayload discards the current session and its saved state.
type ClearSessionPayload struct{}

// ClearBufferPayload discards the buffered transcript.
type ClearBufferPayload struct{}

// TranscriptSegmentPayload appends recognized speech to the buffer.
// Final segments are accumulated, non-final ones only update the preview.
type TranscriptSegmentPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}
