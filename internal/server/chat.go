package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/chat"
	"chatrelay/internal/intent"
	"chatrelay/internal/translator"
)

func (s *Server) handleModels(c echo.Context) error {
	available := s.svc.Router.AvailableModels(c.Request().Context(), currentUser(c))
	return c.JSON(http.StatusOK, translator.FromModels(available))
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	in, err := req.ToInput(currentUser(c))
	if err != nil {
		return toHTTPError(err)
	}

	outcome, err := s.svc.Chat.HandleChat(c.Request().Context(), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, translator.FromOutcome(outcome))
}

func (s *Server) handleStreamChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	in, err := req.ToInput(currentUser(c))
	if err != nil {
		return toHTTPError(err)
	}

	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return requestError{Status: http.StatusInternalServerError, Message: "当前连接不支持流式响应"}
	}

	// Headers are committed with the first event so that request errors
	// still produce a JSON body.
	started := false
	emit := func(ev chat.Event) error {
		if !started {
			header := w.Header()
			header.Set(echo.HeaderContentType, "text/event-stream")
			header.Set("Cache-Control", "no-cache")
			header.Set("Connection", "keep-alive")
			header.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writeSSEEvent(w, string(ev.Type), translator.FromEvent(ev)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.svc.Chat.StreamChat(c.Request().Context(), in, emit); err != nil {
		if started {
			slog.Warn("stream chat aborted", "user", in.UserID, "error", err)
			return nil
		}
		return toHTTPError(err)
	}
	return nil
}

func (s *Server) handleFunctionRouter(c echo.Context) error {
	var req translator.FunctionRouterRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return toHTTPError(err)
	}

	detected, result := s.svc.Intents.Route(c.Request().Context(), intent.Input{
		Text:   req.Input,
		Model:  req.Model,
		UserID: currentUser(c),
	})
	return c.JSON(http.StatusOK, translator.FunctionRouterResponse{
		Result: result,
		Intent: string(detected),
	})
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
