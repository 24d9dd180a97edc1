package core

type LLMMessageRole string

const (
	LLMMessageRoleUser      LLMMessageRole = "user"
	LLMMessageRoleAssistant LLMMessageRole = "assistant"
	LLMMessageRoleSystem    LLMMessageRole = "system"
)

// LLMMessage represents a single message exchanged with the LLM.
type LLMMessage struct {
	Role    LLMMessageRole `json:"role"`    // Role of the message sender (user, assistant, system).
	Message string         `json:"message"` // Content of the message.
}

// NewLLMMessage creates a message with the given role and content.
func NewLLMMessage(role LLMMessageRole, message string) LLMMessage {
	return LLMMessage{Role: role, Message: message}
}
