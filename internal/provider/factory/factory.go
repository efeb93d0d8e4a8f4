package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/provider"
	geminiProvider "chatrelay/internal/provider/gemini"
	openaiProvider "chatrelay/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs adapters from configuration and stores them in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	// Per-call deadlines are enforced by the adapters; the client timeout is a backstop.
	client := newHTTPClient(defaultHTTPTimeout)

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		adapter, err := build(id, cfg.Providers[id], client)
		if err != nil {
			return fmt.Errorf("initialise %s provider: %w", id, err)
		}
		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("register %s provider: %w", id, err)
		}
		slog.Debug("provider registered", "provider", id, "models", len(adapter.Models()))
	}

	return nil
}

func build(id string, pc config.ProviderConfig, client *http.Client) (provider.Adapter, error) {
	switch pc.APIStyle {
	case config.StyleGemini:
		return geminiProvider.New(id, pc, client)
	case config.StyleOpenAI:
		p, err := openaiProvider.New(id, pc, client)
		if err != nil {
			return nil, err
		}
		if pc.Streaming {
			return openaiProvider.Streaming(p), nil
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported api_style %q", pc.APIStyle)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
