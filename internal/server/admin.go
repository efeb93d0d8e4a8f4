package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleClearBlacklist(c echo.Context) error {
	removed := s.svc.Policy.Blacklist().Clear()
	slog.Info("blacklist cleared", "removed", removed, "ip", c.RealIP())
	return c.JSON(http.StatusOK, map[string]any{"message": "黑名单已清空", "removed": removed})
}

func (s *Server) handleClearRateLimits(c echo.Context) error {
	s.svc.Policy.Limiter().Clear()
	slog.Info("rate limits cleared", "ip", c.RealIP())
	return c.JSON(http.StatusOK, map[string]any{"message": "频率限制已重置"})
}
