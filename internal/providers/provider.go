package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/services"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/poller"
)

// GenerationRequest is a model-agnostic video generation request.
type GenerationRequest struct {
	Prompt   string
	ImageURL string
	Duration int
}

// VideoProvider submits a generation job upstream and polls it. The
// route carries the resolved target model, credential, and base URL.
type VideoProvider interface {
	Name() string
	Submit(ctx context.Context, route *services.Route, req *GenerationRequest) (string, error)
	Poll(ctx context.Context, route *services.Route, upstreamID string) (*poller.Snapshot, error)
}

// Factory builds a provider from its config section.
type Factory func(cfg config.ProviderConfig, client *httpclient.Client) VideoProvider

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider factory %s already registered", name))
	}
	factories[name] = f
}

func Get(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("provider factory not found for: %s", name)
	}
	return f, nil
}
