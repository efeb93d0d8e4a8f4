package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
	"chatrelay/internal/provider"
	"chatrelay/internal/store"
)

type namedAdapter struct{ name string }

func (a namedAdapter) ID() string             { return strings.ToLower(a.name) }
func (a namedAdapter) DisplayName() string    { return a.name }
func (a namedAdapter) Models() []models.Model { return nil }
func (a namedAdapter) Send(context.Context, models.ChatRequest, models.ProviderCredential) (*models.ChatResult, error) {
	return nil, errors.New("not used")
}

type fakeCompleter struct {
	reply    string
	err      error
	tokens   []string
	streamed bool
	requests []models.ChatRequest
}

func (f *fakeCompleter) Send(_ context.Context, _ string, req models.ChatRequest) (*models.ChatResult, provider.Adapter, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, namedAdapter{"DeepSeek"}, f.err
	}
	return &models.ChatResult{Content: f.reply}, namedAdapter{"DeepSeek"}, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, _ string, req models.ChatRequest, onToken func(string) error) (*models.ChatResult, provider.Adapter, bool, error) {
	f.requests = append(f.requests, req)
	if !f.streamed {
		if f.err != nil {
			return nil, namedAdapter{"DeepSeek"}, false, f.err
		}
		return &models.ChatResult{Content: f.reply}, namedAdapter{"DeepSeek"}, false, nil
	}
	var sb strings.Builder
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return nil, namedAdapter{"OpenAI"}, true, fmt.Errorf("relay token: %w", err)
		}
		sb.WriteString(tok)
	}
	if f.err != nil {
		return nil, namedAdapter{"OpenAI"}, true, f.err
	}
	return &models.ChatResult{Content: sb.String()}, namedAdapter{"OpenAI"}, true, nil
}

func (f *fakeCompleter) DisplayName(string) string { return "Fallback" }

func settings() Settings {
	return Settings{DefaultModel: "gpt-3.5-turbo", Window: 8, Temperature: 0.6, MaxTokens: 2000, TopP: 0.7}
}

func TestHandleChatCreatesConversation(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{reply: "hello back"}
	o := New(mem, fc, settings())

	long := strings.Repeat("你", 60)
	out, err := o.HandleChat(context.Background(), Input{UserID: "u1", Text: long, Model: "deepseek-chat"})
	require.NoError(t, err)

	require.Equal(t, strings.Repeat("你", 50), out.Conversation.Title)
	require.Equal(t, "deepseek-chat", out.ModelUsed)
	require.Equal(t, long, out.UserMessage.Content)
	require.Equal(t, "hello back", out.AssistantMessage.Content)
	require.False(t, out.Failed)

	stored, err := mem.RecentHistory(context.Background(), out.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, models.RoleUser, stored[0].Role)
	require.Equal(t, models.RoleAssistant, stored[1].Role)

	req := fc.requests[0]
	require.Len(t, req.Messages, 1)
	require.InDelta(t, 0.6, req.Temperature, 1e-9)
}

func TestHandleChatWindowsHistory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	fc := &fakeCompleter{reply: "ok"}
	o := New(mem, fc, settings())

	out, err := o.HandleChat(ctx, Input{UserID: "u1", Text: "first"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := o.HandleChat(ctx, Input{UserID: "u1", ConversationID: out.Conversation.ID, Text: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
	}

	last := fc.requests[len(fc.requests)-1]
	require.Len(t, last.Messages, 9)
	require.Equal(t, "q9", last.Messages[8].Content)
	require.Equal(t, models.RoleUser, last.Messages[8].Role)
	for _, turn := range last.Messages[:8] {
		require.NotEqual(t, "q9", turn.Content)
	}
	require.Equal(t, "gpt-3.5-turbo", last.Model)
}

func TestHandleChatForeignConversation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	o := New(mem, &fakeCompleter{reply: "ok"}, settings())

	out, err := o.HandleChat(ctx, Input{UserID: "alice", Text: "hi"})
	require.NoError(t, err)

	_, err = o.HandleChat(ctx, Input{UserID: "mallory", ConversationID: out.Conversation.ID, Text: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)

	_, err = o.HandleChat(ctx, Input{UserID: "alice", ConversationID: "missing", Text: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHandleChatPersistsApology(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{err: &provider.UpstreamError{Status: 500, Body: "boom"}}
	o := New(mem, fc, settings())

	out, err := o.HandleChat(context.Background(), Input{UserID: "u1", Text: "hi", Model: "deepseek-chat"})
	require.NoError(t, err)
	require.True(t, out.Failed)
	require.Equal(t, "抱歉，请求DeepSeek服务时发生错误：500 - boom", out.AssistantMessage.Content)

	stored, _ := mem.RecentHistory(context.Background(), out.Conversation.ID, 0)
	require.Len(t, stored, 2)
}

func collect(events *[]Event) func(Event) error {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestStreamChatRealTokens(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{streamed: true, tokens: []string{"Hel", "lo"}}
	o := New(mem, fc, settings())

	var events []Event
	require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi", Model: "gpt-4"}, collect(&events)))

	require.Len(t, events, 4)
	require.Equal(t, EventUserMessage, events[0].Type)
	require.Equal(t, "hi", events[0].Message.Content)
	require.Equal(t, EventToken, events[1].Type)
	require.False(t, events[1].Simulated)
	require.Equal(t, EventComplete, events[3].Type)
	require.Equal(t, "Hello", events[3].Message.Content)
	require.NotEmpty(t, events[3].ConversationID)
}

func TestStreamChatSimulatedTokens(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{reply: "one two three"}
	o := New(mem, fc, settings())

	var events []Event
	require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi", Model: "deepseek-chat"}, collect(&events)))

	var tokens []string
	for _, ev := range events {
		if ev.Type == EventToken {
			require.True(t, ev.Simulated)
			tokens = append(tokens, ev.Content)
		}
	}
	require.Equal(t, []string{"one ", "two ", "three "}, tokens)

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Type)
	require.Equal(t, "one two three", last.Message.Content)
}

func TestStreamChatProviderFailure(t *testing.T) {
	t.Run("before any token", func(t *testing.T) {
		mem := store.NewMemory()
		o := New(mem, &fakeCompleter{err: fmt.Errorf("x: %w", provider.ErrTimeout)}, settings())

		var events []Event
		require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi", Model: "deepseek-chat"}, collect(&events)))

		last := events[len(events)-1]
		require.Equal(t, EventError, last.Type)
		require.Equal(t, "抱歉，请求超时。请稍后再试。", last.Error)
		require.Equal(t, last.Error, last.Message.Content)
	})

	t.Run("after partial tokens", func(t *testing.T) {
		mem := store.NewMemory()
		o := New(mem, &fakeCompleter{streamed: true, tokens: []string{"par", "tial"}, err: errors.New("reset")}, settings())

		var events []Event
		require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi"}, collect(&events)))

		last := events[len(events)-1]
		require.Equal(t, EventError, last.Type)
		require.Equal(t, "partial", last.Message.Content)
		require.Equal(t, "抱歉，请求OpenAI服务时发生错误：reset", last.Error)
	})
}

func TestStreamChatClientDisconnect(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{streamed: true, tokens: []string{"a", "b", "c", "d"}}
	o := New(mem, fc, settings())

	var events []Event
	emit := func(ev Event) error {
		if ev.Type == EventToken && len(events) >= 3 {
			return errors.New("broken pipe")
		}
		events = append(events, ev)
		return nil
	}

	require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi"}, emit))

	// user_message plus two tokens were delivered; nothing after the failure.
	require.Len(t, events, 3)
	convID := events[0].ConversationID

	stored, err := mem.RecentHistory(context.Background(), convID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "abc", stored[1].Content)
}

func TestStreamChatDisconnectBeforeTokens(t *testing.T) {
	mem := store.NewMemory()
	fc := &fakeCompleter{streamed: true, tokens: []string{"a"}}
	o := New(mem, fc, settings())

	var convID string
	emit := func(ev Event) error {
		convID = ev.ConversationID
		return errors.New("gone")
	}
	require.NoError(t, o.StreamChat(context.Background(), Input{UserID: "u1", Text: "hi"}, emit))
	require.Empty(t, fc.requests)

	stored, err := mem.RecentHistory(context.Background(), convID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, InterruptedReply, stored[1].Content)
}

func TestTitle(t *testing.T) {
	require.Equal(t, "hello", Title("  hello ", ""))
	require.Equal(t, "图片消息", Title("", "https://x/y.png"))
	require.Equal(t, "新对话", Title("", ""))
}
