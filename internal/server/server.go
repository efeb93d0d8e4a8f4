package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatrelay/internal/auth"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/intent"
	"chatrelay/internal/push"
	"chatrelay/internal/ratelimit"
	"chatrelay/internal/router"
	"chatrelay/internal/signaling"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	// Streaming replies may run for as long as the slowest provider.
	writeTimeout = 5 * time.Minute
	idleTimeout  = 120 * time.Second
)

// Services are the collaborators the HTTP layer dispatches to.
type Services struct {
	Chat    *chat.Orchestrator
	Intents *intent.Router
	Router  *router.Router
	Hub     *signaling.Hub
	Broker  *push.Broker
	Policy  *ratelimit.Policy
	Tokens  *auth.Issuer
}

func (s Services) validate() error {
	switch {
	case s.Chat == nil:
		return errors.New("chat orchestrator must not be nil")
	case s.Intents == nil:
		return errors.New("intent router must not be nil")
	case s.Router == nil:
		return errors.New("router must not be nil")
	case s.Hub == nil:
		return errors.New("signaling hub must not be nil")
	case s.Broker == nil:
		return errors.New("push broker must not be nil")
	case s.Policy == nil:
		return errors.New("rate limit policy must not be nil")
	case s.Tokens == nil:
		return errors.New("token issuer must not be nil")
	}
	return nil
}

type Server struct {
	cfg      config.Config
	svc      Services
	app      *echo.Echo
	address  string
	upgrader websocket.Upgrader

	// baseCtx outlives individual requests; hijacked WebSocket connections use it.
	baseCtx context.Context
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, svc Services) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:  true,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"ip", v.RemoteIP,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, adminTokenHeader},
		}))
	}

	srv := &Server{
		cfg:     cfg,
		svc:     svc,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin:      originChecker(cfg.Server.AllowedOrigins),
		},
		baseCtx: context.Background(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/models", s.handleModels, s.optionalUser)

	s.app.POST("/chat", s.handleChat, s.requireUser, s.guard(config.EndpointChat))
	s.app.POST("/stream-chat", s.handleStreamChat, s.requireUser, s.guard(config.EndpointStreamChat))
	s.app.POST("/function-router", s.handleFunctionRouter, s.optionalUser, s.guard(config.EndpointFunctionRouter))

	voice := s.app.Group("/voice", s.requireUser, s.guard(config.EndpointVoice))
	voice.POST("/initiate", s.handleInitiateCall)
	voice.POST("/answer", s.handleAnswerCall)
	voice.POST("/reject", s.handleRejectCall)
	voice.POST("/end", s.handleEndCall)
	voice.POST("/signaling", s.handleSignal)
	voice.GET("/get-signaling", s.handlePollSignals)
	voice.GET("/status", s.handleCallStatus)

	s.app.GET("/ws/voice-call", s.handleVoiceSocket, s.requireUser, s.guard(config.EndpointVoice))

	admin := s.app.Group("/admin", s.requireAdmin)
	admin.POST("/blacklist/clear", s.handleClearBlacklist)
	admin.POST("/rate-limits/clear", s.handleClearRateLimits)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		if !ok {
			_, ok = set["*"]
		}
		return ok
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("chatrelay ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /models")
	fmt.Println("  POST /chat")
	fmt.Println("  POST /stream-chat")
	fmt.Println("  POST /function-router")
	fmt.Println("  POST /voice/{initiate,answer,reject,end,signaling}")
	fmt.Println("  GET  /voice/{get-signaling,status}")
	fmt.Println("  GET  /ws/voice-call")
	fmt.Printf("Example:\n  curl http://%s:%d/chat -H 'Authorization: Bearer <token>' -H 'Content-Type: application/json' -d '{\"message\":\"你好\",\"model\":\"gpt-3.5-turbo\"}'\n\n", host, port)
}
