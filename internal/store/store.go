// Package store defines the collaborator interfaces the router depends on:
// per-user provider credentials, conversation history and the user directory.
package store

import (
	"context"
	"errors"

	"chatrelay/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CredentialStore resolves per-user provider API keys.
type CredentialStore interface {
	// GetKey returns the user's key for providerID; ok is false when the user has none.
	GetKey(ctx context.Context, userID, providerID string) (key string, ok bool, err error)
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	// AppendMessage stores msg, assigning ID and CreatedAt when empty, and bumps the
	// conversation's UpdatedAt.
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	// RecentHistory returns at most limit messages of the conversation in chronological order,
	// taken from the end of the conversation.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// UserDirectory answers whether a user id refers to a known user.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
