package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"chatrelay/internal/models"
)

// ErrUnknownProvider indicates no adapter is registered under the requested id.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same provider twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// Adapter translates the canonical chat request into one vendor's wire format.
type Adapter interface {
	ID() string
	DisplayName() string
	Models() []models.Model
	Send(ctx context.Context, req models.ChatRequest, cred models.ProviderCredential) (*models.ChatResult, error)
}

// StreamingAdapter is implemented by adapters able to relay tokens as they arrive.
// onToken is invoked sequentially; a non-nil return aborts the upstream call.
type StreamingAdapter interface {
	Adapter
	Stream(ctx context.Context, req models.ChatRequest, cred models.ProviderCredential, onToken func(string) error) (*models.ChatResult, error)
}

// Registry maintains a mapping of provider IDs to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds the adapter under its ID.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Lookup returns the adapter registered under providerID.
func (r *Registry) Lookup(providerID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return a, nil
}

// Adapters returns every registered adapter ordered by ID.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
