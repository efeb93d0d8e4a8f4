package translator

import (
	"encoding/json"
	"strings"
	"time"

	"chatrelay/internal/signaling"
)

// CallRequest is the body of the call control endpoints.
type CallRequest struct {
	TargetUserID string `json:"target_user_id"`
	CallID       string `json:"call_id"`
}

// Validate requires the field the given action needs.
func (r *CallRequest) Validate(needTarget bool) error {
	r.TargetUserID = strings.TrimSpace(r.TargetUserID)
	r.CallID = strings.TrimSpace(r.CallID)
	if needTarget && r.TargetUserID == "" {
		return &ValidationError{Field: "target_user_id", Message: "target_user_id 不能为空"}
	}
	if !needTarget && r.CallID == "" {
		return &ValidationError{Field: "call_id", Message: "call_id 不能为空"}
	}
	return nil
}

// CallResponse acknowledges a call control action.
type CallResponse struct {
	CallID   string `json:"call_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Duration *int   `json:"duration,omitempty"`
}

// StatusInitiated is reported by the initiate endpoint instead of pending.
const StatusInitiated = "initiated"

func callMessage(status string) string {
	switch status {
	case StatusInitiated:
		return "通话请求已发送"
	case string(signaling.StateAccepted):
		return "通话已接听"
	case string(signaling.StateRejected):
		return "通话已拒绝"
	case string(signaling.StateEnded):
		return "通话已结束"
	default:
		return ""
	}
}

// FromSession builds the acknowledgement for s. A non-empty status overrides
// the session state label.
func FromSession(s signaling.Session, status string) CallResponse {
	if status == "" {
		status = string(s.State)
	}
	resp := CallResponse{CallID: s.CallID, Status: status, Message: callMessage(status)}
	if s.State == signaling.StateEnded {
		d := s.Duration
		resp.Duration = &d
	}
	return resp
}

// SignalRequest is the body of POST /voice/signaling.
type SignalRequest struct {
	CallID string          `json:"call_id"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// Validate checks the envelope fields.
func (r *SignalRequest) Validate() (signaling.SignalType, error) {
	if strings.TrimSpace(r.CallID) == "" {
		return "", &ValidationError{Field: "call_id", Message: "call_id 不能为空"}
	}
	typ, err := signaling.ParseSignalType(r.Type)
	if err != nil {
		return "", &ValidationError{Field: "type", Message: "type 必须是 offer、answer 或 ice_candidate"}
	}
	if len(r.Data) == 0 || !json.Valid(r.Data) {
		return "", &ValidationError{Field: "data", Message: "data 必须是有效的JSON"}
	}
	return typ, nil
}

// SignalSentResponse acknowledges a relayed envelope.
type SignalSentResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalsResponse is the body returned by GET /voice/get-signaling.
type SignalsResponse struct {
	Signals       []signaling.Envelope `json:"signals"`
	LastTimestamp *time.Time           `json:"last_timestamp"`
}

// FromEnvelopes builds the poll response. A zero latest is reported as null.
func FromEnvelopes(envs []signaling.Envelope, latest time.Time) SignalsResponse {
	if envs == nil {
		envs = []signaling.Envelope{}
	}
	resp := SignalsResponse{Signals: envs}
	if !latest.IsZero() {
		resp.LastTimestamp = &latest
	}
	return resp
}

// ParseSince reads the last_timestamp query parameter. Empty means the beginning.
func ParseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "last_timestamp", Message: "last_timestamp 必须是RFC3339格式"}
	}
	return ts, nil
}
