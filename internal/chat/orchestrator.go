// Package chat runs one conversational exchange end to end: conversation
// lookup, persistence of both sides, history windowing and the provider call,
// optionally relaying tokens as server-sent events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatrelay/internal/history"
	"chatrelay/internal/models"
	"chatrelay/internal/provider"
	"chatrelay/internal/store"
)

// ErrConversationNotFound indicates the conversation does not exist or belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

var errClientGone = errors.New("client disconnected")

// InterruptedReply is stored when the client left before any token was produced.
const InterruptedReply = "抱歉，连接已中断，回复未完成。"

const (
	titleLength     = 50
	defaultTitle    = "新对话"
	imageOnlyTitle  = "图片消息"
	simulatedJoiner = " "
)

// Completer resolves and calls the provider serving a model.
type Completer interface {
	Send(ctx context.Context, userID string, req models.ChatRequest) (*models.ChatResult, provider.Adapter, error)
	Stream(ctx context.Context, userID string, req models.ChatRequest, onToken func(string) error) (*models.ChatResult, provider.Adapter, bool, error)
	DisplayName(model string) string
}

// Settings is the default generation profile for conversational chat.
type Settings struct {
	DefaultModel string
	Window       int
	Temperature  float64
	MaxTokens    int
	TopP         float64
}

// Input is one user message.
type Input struct {
	UserID         string
	ConversationID string
	Text           string
	ImageURL       string
	Model          string
}

// Outcome is the persisted result of HandleChat.
type Outcome struct {
	Conversation     models.Conversation
	UserMessage      models.Message
	AssistantMessage models.Message
	ModelUsed        string
	// Failed is set when the assistant message is an apology rather than a model answer.
	Failed bool
}

// Orchestrator coordinates persistence and provider calls for chat.
type Orchestrator struct {
	conversations store.ConversationStore
	completer     Completer
	window        history.Windower
	settings      Settings
}

// New constructs an Orchestrator.
func New(conversations store.ConversationStore, completer Completer, settings Settings) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		completer:     completer,
		window:        history.New(settings.Window),
		settings:      settings,
	}
}

// HandleChat persists the user message, calls the provider and persists the
// reply, or an apology when the provider fails. Provider errors are never returned.
func (o *Orchestrator) HandleChat(ctx context.Context, in Input) (*Outcome, error) {
	ex, err := o.begin(ctx, in)
	if err != nil {
		return nil, err
	}

	res, adapter, err := o.completer.Send(ctx, in.UserID, ex.request)
	content := ""
	failed := false
	if err != nil {
		failed = true
		content = provider.Apology(o.providerName(adapter, ex.model), err)
		slog.Warn("chat provider call failed", "conversation", ex.conv.ID, "model", ex.model, "error", err)
	} else {
		content = res.Content
	}

	assistant, err := o.persistReply(ctx, ex.conv.ID, content)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Conversation:     ex.conv,
		UserMessage:      ex.userMsg,
		AssistantMessage: assistant,
		ModelUsed:        ex.model,
		Failed:           failed,
	}, nil
}

// StreamChat behaves like HandleChat but reports progress through emit. Errors
// returned before the first event concern the request itself; once streaming
// has begun, provider failures are reported as an error event and nil is returned.
//
// When emit fails the client is considered gone: no further events are sent,
// the upstream call is cancelled, and whatever text was produced is persisted.
func (o *Orchestrator) StreamChat(ctx context.Context, in Input, emit func(Event) error) error {
	ex, err := o.begin(ctx, in)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	disconnected := false
	send := func(ev Event) error {
		if disconnected {
			return errClientGone
		}
		ev.ConversationID = ex.conv.ID
		if err := emit(ev); err != nil {
			disconnected = true
			cancel()
			slog.Info("stream client disconnected", "conversation", ex.conv.ID, "error", err)
			return errClientGone
		}
		return nil
	}

	userMsg := ex.userMsg
	_ = send(Event{Type: EventUserMessage, Message: &userMsg})

	var partial strings.Builder
	onToken := func(tok string) error {
		partial.WriteString(tok)
		return send(Event{Type: EventToken, Content: tok})
	}

	var res *models.ChatResult
	var adapter provider.Adapter
	var streamed bool
	if disconnected {
		err = errClientGone
	} else {
		res, adapter, streamed, err = o.completer.Stream(streamCtx, in.UserID, ex.request, onToken)
	}
	if ctx.Err() != nil {
		disconnected = true
	}

	var content, apology string
	failed := false
	switch {
	case err == nil:
		content = res.Content
		if !streamed {
			o.simulate(res.Content, send)
		}
	case disconnected:
		content = partial.String()
		if content == "" {
			content = InterruptedReply
		}
	default:
		failed = true
		apology = provider.Apology(o.providerName(adapter, ex.model), err)
		content = partial.String()
		if content == "" {
			content = apology
		}
		slog.Warn("chat stream failed", "conversation", ex.conv.ID, "model", ex.model, "error", err)
	}

	assistant, perr := o.persistReply(ctx, ex.conv.ID, content)
	if perr != nil {
		if !disconnected {
			_ = send(Event{Type: EventError, Error: "保存回复失败"})
		}
		return perr
	}

	if failed {
		_ = send(Event{Type: EventError, Error: apology, Message: &assistant})
		return nil
	}
	_ = send(Event{Type: EventComplete, Message: &assistant, Model: ex.model})
	return nil
}

// simulate splits a whole reply into word tokens for providers without native streaming.
func (o *Orchestrator) simulate(content string, send func(Event) error) {
	for _, word := range strings.Split(content, simulatedJoiner) {
		if err := send(Event{Type: EventToken, Content: word + simulatedJoiner, Simulated: true}); err != nil {
			return
		}
	}
}

type exchange struct {
	conv    models.Conversation
	userMsg models.Message
	model   string
	request models.ChatRequest
}

// begin resolves the conversation, persists the user message and builds the request.
func (o *Orchestrator) begin(ctx context.Context, in Input) (*exchange, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = o.settings.DefaultModel
	}

	conv, err := o.conversation(ctx, in, model)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.conversations.AppendMessage(ctx, models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        in.Text,
		ImageURL:       in.ImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	stored, err := o.conversations.RecentHistory(ctx, conv.ID, o.window.Size()+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	prior := make([]models.Message, 0, len(stored))
	for _, msg := range stored {
		if msg.ID != userMsg.ID {
			prior = append(prior, msg)
		}
	}

	return &exchange{
		conv:    conv,
		userMsg: userMsg,
		model:   model,
		request: models.ChatRequest{
			Model:       model,
			Messages:    o.window.Build(in.Text, prior, in.ImageURL),
			Temperature: o.settings.Temperature,
			MaxTokens:   o.settings.MaxTokens,
			TopP:        o.settings.TopP,
		},
	}, nil
}

func (o *Orchestrator) conversation(ctx context.Context, in Input, model string) (models.Conversation, error) {
	if in.ConversationID == "" {
		conv, err := o.conversations.CreateConversation(ctx, models.Conversation{
			UserID: in.UserID,
			Title:  Title(in.Text, in.ImageURL),
			Model:  model,
		})
		if err != nil {
			return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := o.conversations.GetConversation(ctx, in.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, in.ConversationID)
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if conv.UserID != in.UserID {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, in.ConversationID)
	}
	return conv, nil
}

// persistReply stores the assistant message even if the request context is gone.
func (o *Orchestrator) persistReply(ctx context.Context, conversationID, content string) (models.Message, error) {
	msg, err := o.conversations.AppendMessage(context.WithoutCancel(ctx), models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        content,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("persist assistant message: %w", err)
	}
	return msg, nil
}

func (o *Orchestrator) providerName(adapter provider.Adapter, model string) string {
	if adapter != nil {
		return adapter.DisplayName()
	}
	return o.completer.DisplayName(model)
}

// Title derives a conversation title from its first message.
func Title(text, imageURL string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		if imageURL != "" {
			return imageOnlyTitle
		}
		return defaultTitle
	}
	runes := []rune(text)
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return string(runes)
}
