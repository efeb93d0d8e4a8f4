// Package dependency wires chatrelay services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/dig"

	"chatrelay/internal/auth"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/intent"
	"chatrelay/internal/janitor"
	"chatrelay/internal/provider"
	"chatrelay/internal/provider/factory"
	"chatrelay/internal/push"
	"chatrelay/internal/ratelimit"
	"chatrelay/internal/router"
	"chatrelay/internal/server"
	"chatrelay/internal/signaling"
	"chatrelay/internal/store"
	"chatrelay/internal/store/postgres"
)

const storageOpenTimeout = 30 * time.Second

// Storage is the collaborator store backing every service.
type Storage interface {
	store.CredentialStore
	store.ConversationStore
	store.UserDirectory
}

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	server  *server.Server
	janitor *janitor.Janitor
	storage Storage
}

func (c *Container) Server() *server.Server   { return c.server }
func (c *Container) Janitor() *janitor.Janitor { return c.janitor }

// Close releases the storage backend.
func (c *Container) Close() error {
	if closer, ok := c.storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// New builds and wires all services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	constructors := []any{
		func() *config.Config { return cfg },
		newStorage,
		newRegistry,
		newRouter,
		newOrchestrator,
		newIntentRouter,
		push.NewBroker,
		newHub,
		newPolicy,
		newIssuer,
		newServer,
		newJanitor,
	}
	for _, constructor := range constructors {
		if err := d.Provide(constructor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(srv *server.Server, jan *janitor.Janitor, storage Storage) {
		result = &Container{server: srv, janitor: jan, storage: storage}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newStorage(cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), storageOpenTimeout)
		defer cancel()

		pg, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		for _, userID := range cfg.Users {
			if err := pg.AddUser(ctx, userID); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("seed user %q: %w", userID, err)
			}
		}
		return pg, nil
	default:
		mem := store.NewMemory()
		for _, userID := range cfg.Users {
			mem.AddUser(userID)
		}
		slog.Info("using in-memory storage", "users", len(cfg.Users))
		return mem, nil
	}
}

func newRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := factory.RegisterConfiguredProviders(*cfg, registry); err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}
	return registry, nil
}

func newRouter(cfg *config.Config, registry *provider.Registry, storage Storage) *router.Router {
	return router.New(registry, storage, cfg.Providers)
}

func newOrchestrator(cfg *config.Config, storage Storage, r *router.Router) *chat.Orchestrator {
	return chat.New(storage, r, chat.Settings{
		DefaultModel: cfg.Chat.DefaultModel,
		Window:       cfg.Chat.HistoryWindow,
		Temperature:  cfg.Chat.Temperature,
		MaxTokens:    cfg.Chat.MaxTokens,
		TopP:         cfg.Chat.TopP,
	})
}

func newIntentRouter(cfg *config.Config, r *router.Router) *intent.Router {
	pools, unknown := intent.DefaultPools().Merge(cfg.Intent.Fallbacks)
	for _, name := range unknown {
		slog.Warn("ignoring fallback pool for unknown intent", "intent", name)
	}
	return intent.New(r,
		intent.WithPools(pools),
		intent.WithCustomReplies(cfg.Intent.CustomReplies),
	)
}

func newHub(cfg *config.Config, storage Storage, broker *push.Broker) *signaling.Hub {
	return signaling.NewHub(signaling.NewMemoryStore(), storage, broker, cfg.Signaling)
}

func newPolicy(cfg *config.Config) (*ratelimit.Policy, error) {
	return ratelimit.New(cfg.RateLimits, cfg.Abuse)
}

func newIssuer(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}

// serverParams collects the HTTP layer's collaborators.
type serverParams struct {
	dig.In

	Config  *config.Config
	Chat    *chat.Orchestrator
	Intents *intent.Router
	Router  *router.Router
	Hub     *signaling.Hub
	Broker  *push.Broker
	Policy  *ratelimit.Policy
	Tokens  *auth.Issuer
}

func newServer(p serverParams) (*server.Server, error) {
	return server.New(*p.Config, server.Services{
		Chat:    p.Chat,
		Intents: p.Intents,
		Router:  p.Router,
		Hub:     p.Hub,
		Broker:  p.Broker,
		Policy:  p.Policy,
		Tokens:  p.Tokens,
	})
}

func newJanitor(cfg *config.Config, hub *signaling.Hub, policy *ratelimit.Policy) (*janitor.Janitor, error) {
	return janitor.New(cfg.Signaling.SweepSchedule,
		janitor.Task{Name: "call sessions", Run: func(ctx context.Context) error {
			res, err := hub.Sweep(ctx)
			if err != nil {
				return err
			}
			if res.Expired > 0 || res.Purged > 0 {
				slog.Info("swept call sessions", "expired", res.Expired, "purged", res.Purged)
			}
			return nil
		}},
		janitor.Task{Name: "rate limits", Run: func(context.Context) error {
			policy.Prune()
			return nil
		}},
	)
}
