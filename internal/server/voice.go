package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/signaling"
	"chatrelay/internal/translator"
)

type callAction func(ctx context.Context, callID, userID string) (signaling.Session, error)

func (s *Server) handleInitiateCall(c echo.Context) error {
	var req translator.CallRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(true); err != nil {
		return toHTTPError(err)
	}

	session, err := s.svc.Hub.Initiate(c.Request().Context(), currentUser(c), req.TargetUserID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromSession(session, translator.StatusInitiated))
}

func (s *Server) handleAnswerCall(c echo.Context) error {
	return s.runCallAction(c, s.svc.Hub.Answer)
}

func (s *Server) handleRejectCall(c echo.Context) error {
	return s.runCallAction(c, s.svc.Hub.Reject)
}

func (s *Server) handleEndCall(c echo.Context) error {
	return s.runCallAction(c, s.svc.Hub.End)
}

func (s *Server) runCallAction(c echo.Context, action callAction) error {
	var req translator.CallRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(false); err != nil {
		return toHTTPError(err)
	}

	session, err := action(c.Request().Context(), req.CallID, currentUser(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromSession(session, ""))
}

func (s *Server) handleSignal(c echo.Context) error {
	var req translator.SignalRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	typ, err := req.Validate()
	if err != nil {
		return toHTTPError(err)
	}

	env, err := s.svc.Hub.RelaySignal(c.Request().Context(), strings.TrimSpace(req.CallID), currentUser(c), typ, req.Data)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.SignalSentResponse{
		Status:    "sent",
		Message:   "信令已发送",
		Timestamp: env.Timestamp,
	})
}

func (s *Server) handlePollSignals(c echo.Context) error {
	callID := strings.TrimSpace(c.QueryParam("call_id"))
	if callID == "" {
		return requestError{Status: http.StatusBadRequest, Message: "call_id 不能为空"}
	}
	since, err := translator.ParseSince(c.QueryParam("last_timestamp"))
	if err != nil {
		return toHTTPError(err)
	}

	envs, latest, err := s.svc.Hub.PollSignals(c.Request().Context(), callID, since, currentUser(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromEnvelopes(envs, latest))
}

func (s *Server) handleCallStatus(c echo.Context) error {
	callID := strings.TrimSpace(c.QueryParam("call_id"))
	if callID == "" {
		return requestError{Status: http.StatusBadRequest, Message: "call_id 不能为空"}
	}

	session, err := s.svc.Hub.Status(c.Request().Context(), callID, currentUser(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// handleVoiceSocket upgrades an authenticated, admitted request. Browsers cannot set
// headers on WebSocket requests, so the token usually arrives as ?token=.
func (s *Server) handleVoiceSocket(c echo.Context) error {
	userID := currentUser(c)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the failure response.
		slog.Debug("websocket upgrade failed", "user", userID, "error", err)
		return nil
	}

	s.svc.Broker.Serve(s.baseCtx, conn, userID, s.svc.Hub)
	return nil
}
