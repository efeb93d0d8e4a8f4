package server

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/auth"
	"chatrelay/internal/ratelimit"
)

const (
	userKey          = "chatrelay.user"
	adminTokenHeader = "X-Admin-Token"
)

// requireUser rejects requests without a valid bearer token.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := s.svc.Tokens.Verify(auth.FromRequest(c.Request()))
		if err != nil {
			return toHTTPError(err)
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

// optionalUser records the caller when a valid token is present and
// otherwise lets the request through anonymously.
func (s *Server) optionalUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token := auth.FromRequest(c.Request()); token != "" {
			if userID, err := s.svc.Tokens.Verify(token); err == nil {
				c.Set(userKey, userID)
			}
		}
		return next(c)
	}
}

func currentUser(c echo.Context) string {
	userID, _ := c.Get(userKey).(string)
	return userID
}

// guard runs the abuse policy for endpoint. The body is buffered for
// inspection and handed on unchanged.
func (s *Server) guard(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			var body []byte
			if req.Body != nil {
				data, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
				_ = req.Body.Close()
				if err != nil {
					return requestError{Status: http.StatusBadRequest, Message: "读取请求体失败"}
				}
				if len(data) > maxBodyBytes {
					return requestError{Status: http.StatusRequestEntityTooLarge, Message: "请求体过大"}
				}
				body = data
				req.Body = io.NopCloser(bytes.NewReader(data))
			}

			rejection := s.svc.Policy.Admit(ratelimit.Request{
				IP:       c.RealIP(),
				Endpoint: endpoint,
				Body:     body,
				Header:   req.Header,
				Query:    c.QueryParams(),
			})
			if rejection != nil {
				return toHTTPError(rejection)
			}
			return next(c)
		}
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		expected := s.cfg.Server.AdminToken
		if expected == "" {
			return requestError{Status: http.StatusNotFound, Message: "管理接口未启用"}
		}
		given := c.Request().Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(expected)) != 1 {
			return requestError{Status: http.StatusForbidden, Message: "管理令牌无效"}
		}
		return next(c)
	}
}
