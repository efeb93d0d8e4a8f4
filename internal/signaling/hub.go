package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/config"
	"chatrelay/internal/store"
)

// Push event types delivered to call participants.
const (
	EventIncomingCall = "incoming_call"
	EventCallAccepted = "call_accepted"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
)

// Notification is pushed to one participant when a call changes or a peer
// relays a signal. For signals Type is the SignalType.
type Notification struct {
	Type       string          `json:"type"`
	CallID     string          `json:"call_id"`
	CallerID   string          `json:"caller_id,omitempty"`
	Duration   int             `json:"duration,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	FromUserID string          `json:"from_user_id,omitempty"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
}

// Notifier delivers notifications to a connected user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, Notification) error { return nil }

type callLock struct {
	mu   sync.Mutex
	last time.Time
}

// SweepResult counts sessions removed by Sweep.
type SweepResult struct {
	Expired int
	Purged  int
}

// Hub owns call state transitions. Operations on one call are serialized;
// different calls proceed independently.
type Hub struct {
	sessions Store
	users    store.UserDirectory
	notifier Notifier

	pendingTTL  time.Duration
	terminalTTL time.Duration

	mu    sync.Mutex
	locks map[string]*callLock

	now func() time.Time
}

// NewHub constructs a Hub. A nil notifier disables push delivery.
func NewHub(sessions Store, users store.UserDirectory, notifier Notifier, cfg config.SignalingConfig) *Hub {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Hub{
		sessions:    sessions,
		users:       users,
		notifier:    notifier,
		pendingTTL:  cfg.PendingTTL,
		terminalTTL: cfg.TerminalTTL,
		locks:       make(map[string]*callLock),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) lock(callID string) *callLock {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.locks[callID]
	if !ok {
		l = &callLock{}
		h.locks[callID] = l
	}
	return l
}

func (h *Hub) forget(callID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.locks, callID)
}

// Initiate opens a pending call from callerID to calleeID and notifies the callee.
func (h *Hub) Initiate(ctx context.Context, callerID, calleeID string) (Session, error) {
	if calleeID == "" {
		return Session{}, ErrCalleeNotFound
	}
	if callerID == calleeID {
		return Session{}, ErrSelfCall
	}

	exists, err := h.users.Exists(ctx, calleeID)
	if err != nil {
		return Session{}, fmt.Errorf("look up callee: %w", err)
	}
	if !exists {
		return Session{}, ErrCalleeNotFound
	}

	s := Session{
		CallID:      uuid.NewString(),
		CallerID:    callerID,
		CalleeID:    calleeID,
		State:       StatePending,
		InitiatedAt: h.now(),
	}
	if err := h.sessions.Create(ctx, s); err != nil {
		return Session{}, err
	}

	slog.Info("call initiated", "call_id", s.CallID, "caller", callerID, "callee", calleeID)
	h.notify(ctx, calleeID, Notification{Type: EventIncomingCall, CallID: s.CallID, CallerID: callerID})
	return s, nil
}

// Answer accepts a pending call. Only the callee may answer.
func (h *Hub) Answer(ctx context.Context, callID, userID string) (Session, error) {
	s, err := h.transition(ctx, callID, func(s *Session) error {
		if userID != s.CalleeID {
			return ErrUnauthorized
		}
		if s.State != StatePending {
			return fmt.Errorf("%w: answer from %s", ErrInvalidTransition, s.State)
		}
		now := h.now()
		s.State = StateAccepted
		s.AcceptedAt = &now
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	h.notify(ctx, s.CallerID, Notification{Type: EventCallAccepted, CallID: s.CallID})
	return s, nil
}

// Reject declines a pending call. Only the callee may reject.
func (h *Hub) Reject(ctx context.Context, callID, userID string) (Session, error) {
	s, err := h.transition(ctx, callID, func(s *Session) error {
		if userID != s.CalleeID {
			return ErrUnauthorized
		}
		if s.State != StatePending {
			return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, s.State)
		}
		now := h.now()
		s.State = StateRejected
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	h.notify(ctx, s.CallerID, Notification{Type: EventCallRejected, CallID: s.CallID})
	return s, nil
}

// End hangs up a pending or accepted call. Either participant may end it.
func (h *Hub) End(ctx context.Context, callID, userID string) (Session, error) {
	s, err := h.transition(ctx, callID, func(s *Session) error {
		if !s.Participant(userID) {
			return ErrUnauthorized
		}
		if s.State.Terminal() {
			return fmt.Errorf("%w: end from %s", ErrInvalidTransition, s.State)
		}
		now := h.now()
		s.State = StateEnded
		s.EndedAt = &now
		if s.AcceptedAt != nil {
			s.Duration = int(now.Sub(*s.AcceptedAt).Seconds())
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	h.notify(ctx, s.Peer(userID), Notification{Type: EventCallEnded, CallID: s.CallID, Duration: s.Duration})
	return s, nil
}

func (h *Hub) transition(ctx context.Context, callID string, apply func(*Session) error) (Session, error) {
	l := h.lock(callID)
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := h.sessions.Get(ctx, callID)
	if errors.Is(err, ErrCallNotFound) {
		h.forget(callID)
	}
	if err != nil {
		return Session{}, err
	}
	if err := apply(&s); err != nil {
		return Session{}, err
	}
	if err := h.sessions.Update(ctx, s); err != nil {
		return Session{}, fmt.Errorf("update call %s: %w", callID, err)
	}
	slog.Info("call state changed", "call_id", callID, "state", s.State)
	return s, nil
}

// RelaySignal appends an envelope from senderID and pushes it to the peer.
// Timestamps are strictly increasing within a call.
func (h *Hub) RelaySignal(ctx context.Context, callID, senderID string, typ SignalType, payload json.RawMessage) (Envelope, error) {
	typ, err := ParseSignalType(string(typ))
	if err != nil {
		return Envelope{}, err
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return Envelope{}, fmt.Errorf("%w: payload must be JSON", ErrInvalidSignal)
	}

	l := h.lock(callID)
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := h.sessions.Get(ctx, callID)
	if errors.Is(err, ErrCallNotFound) {
		h.forget(callID)
	}
	if err != nil {
		return Envelope{}, err
	}
	if !s.Participant(senderID) {
		return Envelope{}, ErrUnauthorized
	}
	if s.State.Terminal() {
		return Envelope{}, fmt.Errorf("%w: signal on %s call", ErrInvalidTransition, s.State)
	}

	if l.last.IsZero() {
		envs, err := h.sessions.Envelopes(ctx, callID)
		if err != nil {
			return Envelope{}, fmt.Errorf("load envelopes: %w", err)
		}
		if len(envs) > 0 {
			l.last = envs[len(envs)-1].Timestamp
		}
	}
	ts := h.now()
	if !ts.After(l.last) {
		ts = l.last.Add(time.Microsecond)
	}

	env := Envelope{
		CallID:    callID,
		Type:      typ,
		Payload:   payload,
		SenderID:  senderID,
		Timestamp: ts,
	}
	if err := h.sessions.Append(ctx, env); err != nil {
		return Envelope{}, fmt.Errorf("append envelope: %w", err)
	}
	l.last = ts

	h.notify(ctx, s.Peer(senderID), Notification{
		Type:       string(typ),
		CallID:     callID,
		Data:       payload,
		FromUserID: senderID,
		Timestamp:  &env.Timestamp,
	})
	return env, nil
}

// PollSignals returns envelopes newer than since that requesterID did not
// send, plus the newest timestamp of the call. Unknown calls yield nothing.
func (h *Hub) PollSignals(ctx context.Context, callID string, since time.Time, requesterID string) ([]Envelope, time.Time, error) {
	s, err := h.sessions.Get(ctx, callID)
	if errors.Is(err, ErrCallNotFound) {
		return []Envelope{}, since, nil
	}
	if err != nil {
		return nil, since, err
	}
	if !s.Participant(requesterID) {
		return nil, since, ErrUnauthorized
	}

	envs, err := h.sessions.Envelopes(ctx, callID)
	if err != nil {
		return nil, since, fmt.Errorf("load envelopes: %w", err)
	}

	out := make([]Envelope, 0, len(envs))
	for _, env := range envs {
		if env.Timestamp.After(since) && env.SenderID != requesterID {
			out = append(out, env)
		}
	}

	latest := since
	if len(envs) > 0 {
		latest = envs[len(envs)-1].Timestamp
	}
	return out, latest, nil
}

// Status returns the session for one of its participants.
func (h *Hub) Status(ctx context.Context, callID, userID string) (Session, error) {
	s, err := h.sessions.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if !s.Participant(userID) {
		return Session{}, ErrUnauthorized
	}
	return s, nil
}

// Sweep drops pending calls nobody answered and terminal calls past their retention.
func (h *Hub) Sweep(ctx context.Context) (SweepResult, error) {
	sessions, err := h.sessions.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list calls: %w", err)
	}

	var res SweepResult
	for _, candidate := range sessions {
		removed, expired, err := h.sweepOne(ctx, candidate.CallID)
		if err != nil {
			return res, err
		}
		if !removed {
			continue
		}
		h.forget(candidate.CallID)
		if expired {
			res.Expired++
		} else {
			res.Purged++
		}
	}
	return res, nil
}

func (h *Hub) sweepOne(ctx context.Context, callID string) (removed, expired bool, err error) {
	l := h.lock(callID)
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := h.sessions.Get(ctx, callID)
	if errors.Is(err, ErrCallNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	now := h.now()
	switch {
	case s.State == StatePending && now.Sub(s.InitiatedAt) > h.pendingTTL:
		expired = true
	case s.State.Terminal() && now.Sub(terminalSince(s)) > h.terminalTTL:
	default:
		return false, false, nil
	}

	if err := h.sessions.Delete(ctx, callID); err != nil {
		return false, false, fmt.Errorf("delete call %s: %w", callID, err)
	}
	slog.Debug("call swept", "call_id", callID, "state", s.State, "expired", expired)
	return true, expired, nil
}

func terminalSince(s Session) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.InitiatedAt
}

func (h *Hub) notify(ctx context.Context, userID string, n Notification) {
	if err := h.notifier.Notify(ctx, userID, n); err != nil {
		slog.Warn("push notification failed", "user", userID, "type", n.Type, "call_id", n.CallID, "error", err)
	}
}
