package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatrelay/internal/config"
	"chatrelay/internal/models"
	"chatrelay/internal/provider"
	"chatrelay/internal/store"
)

// Route maps model name prefixes to a provider.
type Route struct {
	Prefixes   []string
	ProviderID string
}

// Routes is the prefix dispatch table, checked in order. The first matching
// prefix wins, so qwen-code must precede qwen.
var Routes = []Route{
	{Prefixes: []string{"gpt"}, ProviderID: config.ProviderOpenAI},
	{Prefixes: []string{"gemini"}, ProviderID: config.ProviderGemini},
	{Prefixes: []string{"kimi"}, ProviderID: config.ProviderKimi},
	{Prefixes: []string{"qwen-code", "qwen_coder"}, ProviderID: config.ProviderQwenCode},
	{Prefixes: []string{"deepseek"}, ProviderID: config.ProviderDeepSeek},
	{Prefixes: []string{"doubao"}, ProviderID: config.ProviderDoubao},
	{Prefixes: []string{"qwen"}, ProviderID: config.ProviderQwen},
}

// DefaultProviderID serves models matching no prefix.
const DefaultProviderID = config.ProviderOpenAI

// ProviderFor returns the provider id responsible for model.
func ProviderFor(model string) string {
	for _, route := range Routes {
		for _, prefix := range route.Prefixes {
			if strings.HasPrefix(model, prefix) {
				return route.ProviderID
			}
		}
	}
	return DefaultProviderID
}

// Router dispatches canonical requests to the adapter owning the model and
// resolves the credential to use for the calling user.
type Router struct {
	registry    *provider.Registry
	credentials store.CredentialStore
	defaults    map[string]config.ProviderConfig
}

// New constructs a router backed by the provided registry. credentials may be nil,
// in which case only configured default keys are used.
func New(registry *provider.Registry, credentials store.CredentialStore, providers map[string]config.ProviderConfig) *Router {
	return &Router{
		registry:    registry,
		credentials: credentials,
		defaults:    providers,
	}
}

// Resolve returns the adapter for model and the credential for userID. When no key
// can be found the adapter is still returned together with provider.ErrCredentialMissing.
func (r *Router) Resolve(ctx context.Context, userID, model string) (provider.Adapter, models.ProviderCredential, error) {
	providerID := ProviderFor(model)
	adapter, err := r.registry.Lookup(providerID)
	if err != nil {
		return nil, models.ProviderCredential{}, err
	}

	def := r.defaults[providerID]
	cred := models.ProviderCredential{
		ProviderID: providerID,
		BaseURL:    def.BaseURL,
	}

	if userID != "" && r.credentials != nil {
		key, ok, err := r.credentials.GetKey(ctx, userID, providerID)
		if err != nil {
			slog.Warn("credential lookup failed", "user", userID, "provider", providerID, "error", err)
		} else if ok {
			cred.APIKey = key
			return adapter, cred, nil
		}
	}

	if strings.TrimSpace(def.APIKey) == "" {
		return adapter, cred, fmt.Errorf("%s: %w", providerID, provider.ErrCredentialMissing)
	}
	cred.APIKey = def.APIKey
	return adapter, cred, nil
}

// Send performs a non-streaming completion. The adapter is returned whenever it
// could be resolved so callers can name the provider in error messages.
func (r *Router) Send(ctx context.Context, userID string, req models.ChatRequest) (*models.ChatResult, provider.Adapter, error) {
	adapter, cred, err := r.Resolve(ctx, userID, req.Model)
	if err != nil {
		return nil, adapter, err
	}

	res, err := adapter.Send(ctx, req, cred)
	if err != nil {
		return nil, adapter, fmt.Errorf("provider %s chat request: %w", adapter.ID(), err)
	}
	return res, adapter, nil
}

// Stream relays tokens through onToken when the adapter supports streaming.
// streamed is false when the adapter only offers Send; the caller then receives
// the whole reply in the result and onToken is never invoked.
func (r *Router) Stream(ctx context.Context, userID string, req models.ChatRequest, onToken func(string) error) (res *models.ChatResult, adapter provider.Adapter, streamed bool, err error) {
	adapter, cred, err := r.Resolve(ctx, userID, req.Model)
	if err != nil {
		return nil, adapter, false, err
	}

	streaming, ok := adapter.(provider.StreamingAdapter)
	if !ok {
		res, err = adapter.Send(ctx, req, cred)
		if err != nil {
			return nil, adapter, false, fmt.Errorf("provider %s chat request: %w", adapter.ID(), err)
		}
		return res, adapter, false, nil
	}

	res, err = streaming.Stream(ctx, req, cred, onToken)
	if err != nil {
		return nil, adapter, true, fmt.Errorf("provider %s stream request: %w", adapter.ID(), err)
	}
	return res, adapter, true, nil
}

// DisplayName returns the human-readable name of the provider serving model.
func (r *Router) DisplayName(model string) string {
	providerID := ProviderFor(model)
	if adapter, err := r.registry.Lookup(providerID); err == nil {
		return adapter.DisplayName()
	}
	return providerID
}

// AvailableModels lists the models of every provider the user holds a key for,
// either their own or the configured default.
func (r *Router) AvailableModels(ctx context.Context, userID string) []models.Model {
	var out []models.Model
	for _, adapter := range r.registry.Adapters() {
		if !r.hasKey(ctx, userID, adapter.ID()) {
			continue
		}
		out = append(out, adapter.Models()...)
	}
	return out
}

func (r *Router) hasKey(ctx context.Context, userID, providerID string) bool {
	if strings.TrimSpace(r.defaults[providerID].APIKey) != "" {
		return true
	}
	if userID == "" || r.credentials == nil {
		return false
	}
	_, ok, err := r.credentials.GetKey(ctx, userID, providerID)
	return err == nil && ok
}
