package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/internal/signaling"
	"chatrelay/internal/store"
)

type harness struct {
	broker *Broker
	hub    *signaling.Hub
	server *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	users := store.NewMemory()
	users.AddUser("alice")
	users.AddUser("bob")

	h := &harness{broker: NewBroker()}
	h.hub = signaling.NewHub(signaling.NewMemoryStore(), users, h.broker, config.SignalingConfig{
		PendingTTL:  time.Minute,
		TerminalTTL: time.Hour,
	})

	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.broker.Serve(r.Context(), conn, r.URL.Query().Get("user"), h.hub)
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.broker.Connected(user) }, time.Second, 5*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestCallFlowOverWebSocket(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": CmdInitiate, "target_user_id": "bob"}))

	ack := readJSON(t, alice)
	require.Equal(t, ReplyInitiated, ack["type"])
	require.Equal(t, "pending", ack["status"])
	callID, _ := ack["call_id"].(string)
	require.NotEmpty(t, callID)

	incoming := readJSON(t, bob)
	require.Equal(t, signaling.EventIncomingCall, incoming["type"])
	require.Equal(t, callID, incoming["call_id"])
	require.Equal(t, "alice", incoming["caller_id"])

	require.NoError(t, bob.WriteJSON(map[string]any{"type": CmdAnswer, "call_id": callID}))
	require.Equal(t, ReplyAnswered, readJSON(t, bob)["type"])
	require.Equal(t, signaling.EventCallAccepted, readJSON(t, alice)["type"])

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":    CmdOffer,
		"call_id": callID,
		"data":    map[string]string{"sdp": "v=0"},
	}))
	require.Equal(t, ReplySignal, readJSON(t, alice)["type"])

	offer := readJSON(t, bob)
	require.Equal(t, "offer", offer["type"])
	require.Equal(t, "alice", offer["from_user_id"])
	require.Equal(t, map[string]any{"sdp": "v=0"}, offer["data"])

	require.NoError(t, bob.WriteJSON(map[string]any{"type": CmdEnd, "call_id": callID}))
	require.Equal(t, ReplyEnded, readJSON(t, bob)["type"])
	require.Equal(t, signaling.EventCallEnded, readJSON(t, alice)["type"])
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "dance"}))
	got := readJSON(t, alice)
	require.Equal(t, ReplyError, got["type"])
	require.Contains(t, got["error"], "dance")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": CmdInitiate, "target_user_id": "ghost"}))
	got = readJSON(t, alice)
	require.Equal(t, ReplyError, got["type"])
	require.Equal(t, "目标用户不存在", got["error"])

	require.NoError(t, alice.WriteJSON(map[string]any{"type": CmdAnswer, "call_id": "missing"}))
	got = readJSON(t, alice)
	require.Equal(t, "通话不存在或已过期", got["error"])
	require.Equal(t, "missing", got["call_id"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{")))
	require.Equal(t, "无效的JSON", readJSON(t, alice)["error"])
}

func TestNotifyWithoutConnection(t *testing.T) {
	b := NewBroker()
	err := b.Notify(context.Background(), "nobody", signaling.Notification{Type: signaling.EventCallEnded})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectUnregisters(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "bob")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !h.broker.Connected("bob") }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatchUsesCaller(t *testing.T) {
	fc := &fakeCommands{}
	r := dispatch(context.Background(), fc, "carol", clientMessage{Type: CmdReject, CallID: "c1"})
	require.Equal(t, ReplyRejected, r.Type)
	require.Equal(t, "carol", fc.user)

	r = dispatch(context.Background(), fc, "carol", clientMessage{Type: CmdICECandidate, CallID: "c1", Data: json.RawMessage(`{}`)})
	require.Equal(t, ReplySignal, r.Type)
	require.Equal(t, signaling.SignalICECandidate, fc.signal)
}

type fakeCommands struct {
	user   string
	signal signaling.SignalType
}

func (f *fakeCommands) Initiate(_ context.Context, callerID, _ string) (signaling.Session, error) {
	f.user = callerID
	return signaling.Session{CallID: "c1", State: signaling.StatePending}, nil
}

func (f *fakeCommands) Answer(_ context.Context, callID, userID string) (signaling.Session, error) {
	f.user = userID
	return signaling.Session{CallID: callID, State: signaling.StateAccepted}, nil
}

func (f *fakeCommands) Reject(_ context.Context, callID, userID string) (signaling.Session, error) {
	f.user = userID
	return signaling.Session{CallID: callID, State: signaling.StateRejected}, nil
}

func (f *fakeCommands) End(_ context.Context, callID, userID string) (signaling.Session, error) {
	f.user = userID
	return signaling.Session{CallID: callID, State: signaling.StateEnded}, nil
}

func (f *fakeCommands) RelaySignal(_ context.Context, callID, senderID string, typ signaling.SignalType, _ json.RawMessage) (signaling.Envelope, error) {
	f.user = senderID
	f.signal = typ
	return signaling.Envelope{CallID: callID, Type: typ}, nil
}
