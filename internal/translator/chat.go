package translator

import (
	"time"

	"chatrelay/internal/chat"
	"chatrelay/internal/models"
)

// ChatRequest is the body of POST /chat and POST /stream-chat.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	ImageURL       string `json:"image_url"`
	Model          string `json:"model"`
}

// ToInput validates the request and converts it for the orchestrator.
// A message may be empty only when an image is attached.
func (r ChatRequest) ToInput(userID string) (chat.Input, error) {
	imageURL, err := checkField("image_url", r.ImageURL, imageURLRule)
	if err != nil {
		return chat.Input{}, err
	}

	rule := messageRule
	rule.allowEmpty = imageURL != ""
	message, err := checkField("message", r.Message, rule)
	if err != nil {
		return chat.Input{}, err
	}

	model, err := checkField("model", r.Model, modelRule)
	if err != nil {
		return chat.Input{}, err
	}

	return chat.Input{
		UserID:         userID,
		ConversationID: r.ConversationID,
		Text:           message,
		ImageURL:       imageURL,
		Model:          model,
	}, nil
}

// Message is a persisted message as returned to clients.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromMessage converts a stored message.
func FromMessage(m models.Message) Message {
	return Message{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
	}
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	ConversationID string  `json:"conversation_id"`
	UserMessage    Message `json:"user_message"`
	AIMessage      Message `json:"ai_message"`
	ModelUsed      string  `json:"model_used"`
}

// FromOutcome converts an orchestrator outcome.
func FromOutcome(o *chat.Outcome) ChatResponse {
	return ChatResponse{
		ConversationID: o.Conversation.ID,
		UserMessage:    FromMessage(o.UserMessage),
		AIMessage:      FromMessage(o.AssistantMessage),
		ModelUsed:      o.ModelUsed,
	}
}

// StreamEvent is the data payload of one server-sent event.
type StreamEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Content        string   `json:"content,omitempty"`
	Error          string   `json:"error,omitempty"`
	Model          string   `json:"model,omitempty"`
	Simulated      bool     `json:"simulated,omitempty"`
}

// FromEvent converts an orchestrator event.
func FromEvent(ev chat.Event) StreamEvent {
	out := StreamEvent{
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		Content:        ev.Content,
		Error:          ev.Error,
		Model:          ev.Model,
		Simulated:      ev.Simulated,
	}
	if ev.Message != nil {
		msg := FromMessage(*ev.Message)
		out.Message = &msg
	}
	return out
}

// FunctionRouterRequest is the body of POST /function-router.
type FunctionRouterRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

// Validate checks and trims the request in place.
func (r *FunctionRouterRequest) Validate() error {
	input, err := checkField("input", r.Input, functionInputRule)
	if err != nil {
		return err
	}
	model, err := checkField("model", r.Model, modelRule)
	if err != nil {
		return err
	}
	r.Input, r.Model = input, model
	return nil
}

// FunctionRouterResponse is the body returned by POST /function-router.
type FunctionRouterResponse struct {
	Result string `json:"result"`
	Intent string `json:"intent"`
}

// Model describes one selectable model.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ModelsResponse is the body returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// FromModels converts the router's model list.
func FromModels(in []models.Model) ModelsResponse {
	out := ModelsResponse{Models: make([]Model, 0, len(in))}
	for _, m := range in {
		out.Models = append(out.Models, Model{ID: m.ID, Name: m.Name, Provider: m.Provider})
	}
	return out
}
