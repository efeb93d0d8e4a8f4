package chat

import "chatrelay/internal/models"

// EventType names a streaming event.
type EventType string

const (
	EventUserMessage EventType = "user_message"
	EventToken       EventType = "token"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Event is one step of a streamed exchange.
type Event struct {
	Type           EventType
	ConversationID string
	// Message is set on user_message, complete and error events.
	Message *models.Message
	Content string
	Error   string
	Model   string
	// Simulated marks tokens cut from a complete reply rather than relayed live.
	Simulated bool
}
