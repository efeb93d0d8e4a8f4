package translator

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/chat"
	"chatrelay/internal/models"
	"chatrelay/internal/signaling"
)

func TestChatRequestToInput(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr string
	}{
		{name: "ok", req: ChatRequest{Message: "  hi  ", Model: "gpt-4"}},
		{name: "image only", req: ChatRequest{ImageURL: "https://img/x.png"}},
		{name: "empty", req: ChatRequest{Message: "   "}, wantErr: "消息 不能为空"},
		{name: "too long", req: ChatRequest{Message: strings.Repeat("长", MaxMessageLength+1)}, wantErr: "消息 长度不能超过 5000 个字符"},
		{name: "unsafe", req: ChatRequest{Message: "<SCRIPT>x"}, wantErr: "消息 包含不安全的内容"},
		{name: "unsafe image", req: ChatRequest{Message: "hi", ImageURL: "javascript:alert(1)"}, wantErr: "图片URL 包含不安全的内容"},
		{name: "long model", req: ChatRequest{Message: "hi", Model: strings.Repeat("m", MaxModelLength+1)}, wantErr: "模型 长度不能超过 100 个字符"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.req.ToInput("u1")
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.Equal(t, "u1", in.UserID)
				require.Equal(t, strings.TrimSpace(tt.req.Message), in.Text)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.wantErr, verr.Message)
		})
	}
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	_, err := ChatRequest{Message: strings.Repeat("长", MaxMessageLength)}.ToInput("u")
	require.NoError(t, err)
}

func TestFunctionRouterRequestValidate(t *testing.T) {
	req := FunctionRouterRequest{Input: " 讲个笑话 "}
	require.NoError(t, req.Validate())
	require.Equal(t, "讲个笑话", req.Input)

	req = FunctionRouterRequest{Input: strings.Repeat("a", MaxFunctionInputLength+1)}
	require.Error(t, req.Validate())

	req = FunctionRouterRequest{}
	require.EqualError(t, req.Validate(), "输入 不能为空")
}

func TestFromEvent(t *testing.T) {
	msg := models.Message{ID: "m1", Role: models.RoleAssistant, Content: "done"}
	ev := FromEvent(chat.Event{Type: chat.EventComplete, ConversationID: "c1", Message: &msg, Model: "gpt-4"})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "complete", decoded["type"])
	require.Equal(t, "c1", decoded["conversation_id"])
	require.Equal(t, "gpt-4", decoded["model"])
	require.NotContains(t, decoded, "simulated")
	require.Equal(t, "done", decoded["message"].(map[string]any)["content"])
}

func TestSignalRequestValidate(t *testing.T) {
	req := SignalRequest{CallID: "c", Type: "ice-candidate", Data: json.RawMessage(`{"candidate":"x"}`)}
	typ, err := req.Validate()
	require.NoError(t, err)
	require.Equal(t, signaling.SignalICECandidate, typ)

	req.Type = "bye"
	_, err = req.Validate()
	require.Error(t, err)

	req = SignalRequest{CallID: "c", Type: "offer"}
	_, err = req.Validate()
	require.Error(t, err)
}

func TestFromSession(t *testing.T) {
	resp := FromSession(signaling.Session{CallID: "c", State: signaling.StatePending}, StatusInitiated)
	require.Equal(t, "通话请求已发送", resp.Message)
	require.Nil(t, resp.Duration)

	resp = FromSession(signaling.Session{CallID: "c", State: signaling.StateEnded, Duration: 0}, "")
	require.Equal(t, "ended", resp.Status)
	require.NotNil(t, resp.Duration)
	require.Equal(t, 0, *resp.Duration)
}

func TestParseSince(t *testing.T) {
	ts, err := ParseSince("")
	require.NoError(t, err)
	require.True(t, ts.IsZero())

	want := time.Date(2024, 5, 1, 9, 0, 0, 1000, time.UTC)
	ts, err = ParseSince(want.Format(time.RFC3339Nano))
	require.NoError(t, err)
	require.True(t, want.Equal(ts))

	_, err = ParseSince("yesterday")
	require.Error(t, err)

	resp := FromEnvelopes(nil, time.Time{})
	require.NotNil(t, resp.Signals)
	require.Nil(t, resp.LastTimestamp)
}
