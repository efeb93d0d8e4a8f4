// Package push delivers call notifications to users over WebSocket
// connections and accepts call commands sent by those users.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// ErrNotConnected is returned by Notify when the user has no open connection.
var ErrNotConnected = errors.New("user has no open push connection")

// Commands is the call control surface exposed to connected clients.
type Commands interface {
	Initiate(ctx context.Context, callerID, calleeID string) (signaling.Session, error)
	Answer(ctx context.Context, callID, userID string) (signaling.Session, error)
	Reject(ctx context.Context, callID, userID string) (signaling.Session, error)
	End(ctx context.Context, callID, userID string) (signaling.Session, error)
	RelaySignal(ctx context.Context, callID, senderID string, typ signaling.SignalType, payload json.RawMessage) (signaling.Envelope, error)
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// enqueue never blocks; a full buffer drops the message.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Broker tracks open connections per user. A user may hold several.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{clients: make(map[string]map[*client]struct{})}
}

// Notify implements signaling.Notifier.
func (b *Broker) Notify(_ context.Context, userID string, n signaling.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	conns := b.clients[userID]
	if len(conns) == 0 {
		return ErrNotConnected
	}
	delivered := 0
	for c := range conns {
		if c.enqueue(payload) {
			delivered++
		} else {
			slog.Warn("push buffer full, dropping notification", "user", userID, "type", n.Type)
		}
	}
	if delivered == 0 {
		return fmt.Errorf("deliver %s to %s: all connections saturated", n.Type, userID)
	}
	return nil
}

// Connected reports whether userID has at least one open connection.
func (b *Broker) Connected(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[userID]) > 0
}

func (b *Broker) register(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clients[c.userID] == nil {
		b.clients[c.userID] = make(map[*client]struct{})
	}
	b.clients[c.userID][c] = struct{}{}
}

func (b *Broker) unregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns := b.clients[c.userID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(b.clients, c.userID)
	}
	close(c.send)
}

// Serve runs one upgraded connection for userID until the client goes away
// or ctx is cancelled. It owns conn and closes it before returning.
func (b *Broker) Serve(ctx context.Context, conn *websocket.Conn, userID string, cmds Commands) {
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	b.register(c)
	slog.Info("push connection opened", "user", userID)

	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx, cmds)

	cancel()
	b.unregister(c)
	<-writerDone
	_ = conn.Close()
	slog.Info("push connection closed", "user", userID)
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks the reader when the writer gives up first.
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("push write failed", "user", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context, cmds Commands) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("push read failed", "user", c.userID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			c.reply(errorReply("仅支持文本消息"))
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(errorReply("无效的JSON"))
			continue
		}
		c.reply(dispatch(ctx, cmds, c.userID, msg))
	}
}

func (c *client) reply(r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		slog.Error("marshal push reply", "error", err)
		return
	}
	if !c.enqueue(payload) {
		slog.Warn("push buffer full, dropping reply", "user", c.userID, "type", r.Type)
	}
}
