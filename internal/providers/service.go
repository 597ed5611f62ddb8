package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/core/services"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/poller"
	"github.com/davshaw/gengate/internal/storage"
	"go.uber.org/zap"
)

// GenerationResult is what the API returns for a finished video job.
type GenerationResult struct {
	UpstreamID string `json:"upstream_id"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	VideoURL   string `json:"video_url"`
}

type pollSettings struct {
	interval    time.Duration
	maxAttempts int
}

// Service runs the synchronous video generation flow: resolve a
// credential, submit upstream, poll to a terminal state, re-host the
// asset, and account for the outcome.
type Service struct {
	router    *services.RouterService
	ledger    *services.LedgerService
	resolver  *storage.Resolver
	providers map[string]VideoProvider
	polling   map[string]pollSettings
}

func NewService(
	router *services.RouterService,
	ledger *services.LedgerService,
	resolver *storage.Resolver,
	cfg config.ProvidersConfig,
	client *httpclient.Client,
) *Service {
	s := &Service{
		router:    router,
		ledger:    ledger,
		resolver:  resolver,
		providers: make(map[string]VideoProvider),
		polling:   make(map[string]pollSettings),
	}
	s.register("vidu", cfg.Vidu, client)
	s.register("doubao", cfg.Seedance, client)
	return s
}

func (s *Service) register(name string, cfg config.ProviderConfig, client *httpclient.Client) {
	factory, err := Get(name)
	if err != nil {
		logger.Warn("Provider not registered", zap.String("provider", name), zap.Error(err))
		return
	}
	s.providers[name] = factory(cfg, client)
	s.polling[name] = pollSettings{
		interval:    time.Duration(cfg.PollSeconds) * time.Second,
		maxAttempts: cfg.PollAttempts,
	}
}

// Generate runs one request end to end and blocks until the upstream
// task finishes or the poll budget runs out.
func (s *Service) Generate(ctx context.Context, modelName string, req *GenerationRequest) (*GenerationResult, error) {
	route, err := s.router.Resolve(ctx, modelName)
	if err != nil {
		return nil, err
	}

	provider, ok := s.providers[route.Provider]
	if !ok {
		return nil, domain.ProviderError(fmt.Sprintf("no provider implementation for '%s'", route.Provider), nil)
	}

	start := time.Now()

	upstreamID, err := provider.Submit(ctx, route, req)
	if err != nil {
		s.ledger.RecordFailure(ctx, route, time.Since(start), upstreamStatus(err), err.Error())
		return nil, domain.ProviderError("generation submission failed", err)
	}

	logger.Info("Generation task submitted",
		zap.String("model", modelName),
		zap.String("provider", route.Provider),
		zap.String("upstream_id", upstreamID),
	)

	settings := s.polling[route.Provider]
	p := &poller.Poller{
		Interval:    settings.interval,
		MaxAttempts: settings.maxAttempts,
		Fetch: func(ctx context.Context) (*poller.Snapshot, error) {
			return provider.Poll(ctx, route, upstreamID)
		},
	}

	snap, err := p.Wait(ctx)
	if err != nil {
		s.ledger.RecordFailure(ctx, route, time.Since(start), 0, err.Error())
		if errors.Is(err, domain.ErrPollTimeout) {
			return nil, domain.ProviderError("generation timed out", err)
		}
		return nil, domain.ProviderError("generation failed upstream", err)
	}

	url, err := poller.ExtractResultURL(snap.Payload)
	if err != nil {
		s.ledger.RecordFailure(ctx, route, time.Since(start), 0, err.Error())
		return nil, domain.ProviderError("generation finished without a result URL", err)
	}

	url = s.resolver.Resolve(ctx, route.StorageType, url)
	s.ledger.RecordSuccess(ctx, route, time.Since(start), 200)

	return &GenerationResult{
		UpstreamID: upstreamID,
		Model:      modelName,
		Provider:   route.Provider,
		VideoURL:   url,
	}, nil
}

func upstreamStatus(err error) int {
	var upstream *httpclient.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}
