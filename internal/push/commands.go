package push

import (
	"context"
	"encoding/json"
	"log/slog"

	"chatrelay/internal/signaling"
)

// Client command types.
const (
	CmdInitiate     = "voice_call_initiate"
	CmdAnswer       = "voice_call_answer"
	CmdReject       = "voice_call_reject"
	CmdEnd          = "voice_call_end"
	CmdOffer        = "webrtc_offer"
	CmdAnswerSDP    = "webrtc_answer"
	CmdICECandidate = "webrtc_ice_candidate"
)

// Reply types acknowledging a command.
const (
	ReplyInitiated = "call_initiated"
	ReplyAnswered  = "call_answered"
	ReplyRejected  = "call_rejected"
	ReplyEnded     = "call_ended"
	ReplySignal    = "signal_sent"
	ReplyError     = "error"
)

type clientMessage struct {
	Type         string          `json:"type"`
	CallID       string          `json:"call_id"`
	TargetUserID string          `json:"target_user_id"`
	Data         json.RawMessage `json:"data"`
}

type reply struct {
	Type     string `json:"type"`
	CallID   string `json:"call_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

func errorReply(msg string) reply {
	return reply{Type: ReplyError, Error: msg}
}

var signalCommands = map[string]signaling.SignalType{
	CmdOffer:        signaling.SignalOffer,
	CmdAnswerSDP:    signaling.SignalAnswer,
	CmdICECandidate: signaling.SignalICECandidate,
}

func dispatch(ctx context.Context, cmds Commands, userID string, msg clientMessage) reply {
	var (
		s       signaling.Session
		err     error
		ackType string
	)

	switch msg.Type {
	case CmdInitiate:
		s, err = cmds.Initiate(ctx, userID, msg.TargetUserID)
		ackType = ReplyInitiated
	case CmdAnswer:
		s, err = cmds.Answer(ctx, msg.CallID, userID)
		ackType = ReplyAnswered
	case CmdReject:
		s, err = cmds.Reject(ctx, msg.CallID, userID)
		ackType = ReplyRejected
	case CmdEnd:
		s, err = cmds.End(ctx, msg.CallID, userID)
		ackType = ReplyEnded
	default:
		typ, ok := signalCommands[msg.Type]
		if !ok {
			return errorReply("未知的消息类型: " + msg.Type)
		}
		if _, err := cmds.RelaySignal(ctx, msg.CallID, userID, typ, msg.Data); err != nil {
			return commandError(userID, msg, err)
		}
		return reply{Type: ReplySignal, CallID: msg.CallID}
	}

	if err != nil {
		return commandError(userID, msg, err)
	}
	return reply{Type: ackType, CallID: s.CallID, Status: string(s.State), Duration: s.Duration}
}

func commandError(userID string, msg clientMessage, err error) reply {
	slog.Info("push command rejected", "user", userID, "type", msg.Type, "call_id", msg.CallID, "error", err)
	r := errorReply(signaling.Message(err))
	r.CallID = msg.CallID
	return r
}
