// Package signaling manages voice call sessions and relays WebRTC
// negotiation envelopes between the two participants of a call.
package signaling

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrUnauthorized      = errors.New("not a participant of this call")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrCallInProgress    = errors.New("a call between these users is already active")
	ErrCalleeNotFound    = errors.New("callee does not exist")
	ErrSelfCall          = errors.New("cannot call yourself")
	ErrInvalidSignal     = errors.New("invalid signal")
)

// State is the lifecycle state of a call.
type State string

const (
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
	StateEnded    State = "ended"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateEnded
}

// Session is one call between a caller and a callee.
type Session struct {
	CallID      string     `json:"call_id"`
	CallerID    string     `json:"caller_id"`
	CalleeID    string     `json:"callee_id"`
	State       State      `json:"status"`
	InitiatedAt time.Time  `json:"initiated_at"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	EndedAt     *time.Time `json:"ended_at"`
	// Duration is whole seconds between acceptance and end.
	Duration int `json:"duration"`
}

// Participant reports whether userID is the caller or the callee.
func (s Session) Participant(userID string) bool {
	return userID != "" && (userID == s.CallerID || userID == s.CalleeID)
}

// Peer returns the other participant.
func (s Session) Peer(userID string) string {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// involves reports whether the session joins a and b in either direction.
func (s Session) involves(a, b string) bool {
	return (s.CallerID == a && s.CalleeID == b) || (s.CallerID == b && s.CalleeID == a)
}

// SignalType names a WebRTC negotiation message.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice_candidate"
)

// ParseSignalType accepts the canonical names plus the hyphenated ice-candidate spelling.
func ParseSignalType(s string) (SignalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offer":
		return SignalOffer, nil
	case "answer":
		return SignalAnswer, nil
	case "ice_candidate", "ice-candidate", "icecandidate":
		return SignalICECandidate, nil
	default:
		return "", ErrInvalidSignal
	}
}

// Envelope is one relayed negotiation message.
type Envelope struct {
	CallID    string          `json:"call_id"`
	Type      SignalType      `json:"type"`
	Payload   json.RawMessage `json:"data"`
	SenderID  string          `json:"from_user_id"`
	Timestamp time.Time       `json:"timestamp"`
}
