package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImagePlaceholder replaces an image reference for providers without multimodal input.
const ImagePlaceholder = "[user attached an image]"

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 4000
)

// ErrInvalidRequest indicates a ChatRequest violated its invariants.
var ErrInvalidRequest = errors.New("invalid chat request")

// Turn is a single message in the normalized request schema.
type Turn struct {
	Role     Role
	Content  string
	ImageURL string
}

// HasImage reports whether the turn carries an image reference.
func (t Turn) HasImage() bool {
	return strings.TrimSpace(t.ImageURL) != ""
}

// PlainText renders the turn as text only, substituting the image placeholder.
func (t Turn) PlainText() string {
	if !t.HasImage() {
		return t.Content
	}
	if strings.TrimSpace(t.Content) == "" {
		return ImagePlaceholder
	}
	return t.Content + "\n" + ImagePlaceholder
}

// ChatRequest is the canonical representation of a chat completion.
type ChatRequest struct {
	Model       string
	Messages    []Turn
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Validate checks the request invariants shared by every adapter.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidRequest)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidRequest, r.Temperature)
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: max_tokens %d outside [1, 4000]", ErrInvalidRequest, r.MaxTokens)
	}
	return nil
}

// ChatResult captures a provider response in the unified schema.
type ChatResult struct {
	ID           string
	Content      string
	FinishReason string
	Usage        *Usage
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ProviderCredential is the per-request snapshot of how to reach a provider.
type ProviderCredential struct {
	ProviderID string
	APIKey     string
	BaseURL    string
}

// Model identifies a known model with provider metadata.
type Model struct {
	ID       string
	Name     string
	Provider string
}

// Conversation groups the messages exchanged by one user.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a persisted conversational message.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	ImageURL       string
	CreatedAt      time.Time
}
