package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/auth"
	"chatrelay/internal/chat"
	"chatrelay/internal/ratelimit"
	"chatrelay/internal/signaling"
	"chatrelay/internal/translator"
)

type requestError struct {
	Status     int
	Message    string
	RetryAfter int
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeError(c echo.Context, status int, message string, retryAfter int) error {
	return c.JSON(status, errorBody{Error: message, RetryAfter: retryAfter})
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.RetryAfter)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), 0)
		return
	}

	slog.Error("unhandled request error", "path", c.Path(), "error", err)
	_ = writeError(c, http.StatusInternalServerError, "服务器内部错误", 0)
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var validation *translator.ValidationError
	if errors.As(err, &validation) {
		return requestError{Status: http.StatusBadRequest, Message: validation.Message}
	}

	var rejection *ratelimit.Rejection
	if errors.As(err, &rejection) {
		return requestError{Status: rejection.Status, Message: rejection.Message, RetryAfter: rejection.RetryAfter}
	}

	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return requestError{Status: http.StatusNotFound, Message: "对话不存在"}
	case errors.Is(err, auth.ErrTokenExpired):
		return requestError{Status: http.StatusUnauthorized, Message: "认证令牌已过期"}
	case errors.Is(err, auth.ErrMissingToken):
		return requestError{Status: http.StatusUnauthorized, Message: "未提供认证令牌"}
	case errors.Is(err, auth.ErrInvalidToken):
		return requestError{Status: http.StatusUnauthorized, Message: "认证令牌无效"}
	}

	if status, ok := signalingStatus(err); ok {
		return requestError{Status: status, Message: signaling.Message(err)}
	}

	return err
}

func signalingStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, signaling.ErrCallNotFound), errors.Is(err, signaling.ErrCalleeNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, signaling.ErrUnauthorized):
		return http.StatusForbidden, true
	case errors.Is(err, signaling.ErrInvalidTransition), errors.Is(err, signaling.ErrCallInProgress):
		return http.StatusConflict, true
	case errors.Is(err, signaling.ErrSelfCall), errors.Is(err, signaling.ErrInvalidSignal):
		return http.StatusBadRequest, true
	}
	return 0, false
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{Status: http.StatusBadRequest, Message: "请求体不能为空"}
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return requestError{Status: http.StatusRequestEntityTooLarge, Message: "请求体过大"}
		}
		return requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf("无效的JSON: %v", err)}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{Status: http.StatusBadRequest, Message: "请求体必须是单个JSON对象"}
	}
	return nil
}
