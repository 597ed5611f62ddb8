package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

// Route is a fully resolved credential for one upstream call.
type Route struct {
	ModelName   string
	TargetModel string
	Provider    string
	BaseURL     string
	APIKey      string
	StorageType string

	Channel   *model.Channel
	Key       *model.ChannelKey
	LegacyKey *model.LegacyAPIKey
}

// IsLegacy reports whether the route came from the per-provider key
// table rather than a channel mapping.
func (r *Route) IsLegacy() bool {
	return r.LegacyKey != nil
}

// RouterService resolves a public model name to an upstream channel,
// target model, and credential. Channel mappings win; the legacy
// per-provider key table is the fallback.
type RouterService struct {
	repo store.Repository
}

func NewRouterService(repo store.Repository) *RouterService {
	return &RouterService{repo: repo}
}

// sizeHintSuffixes are stripped from the model name and used to pick
// among a mapping's target models.
var sizeHintSuffixes = []string{"-4k", "-2k"}

// providerPrefixes maps model-name prefixes to legacy key providers.
var providerPrefixes = []struct {
	prefix   string
	provider string
}{
	{"vidu", "vidu"},
	{"seedance", "doubao"},
	{"doubao", "doubao"},
	{"minimax", "minimax"},
	{"hailuo", "minimax"},
	{"veo", "gemini"},
	{"gemini", "gemini"},
	{"wan", "wanx"},
}

// Resolve picks the credential for a model name. It returns
// domain.ErrNoCredential when neither a channel mapping nor a legacy
// key can serve it.
func (s *RouterService) Resolve(ctx context.Context, modelName string) (*Route, error) {
	baseName, hint := splitSizeHint(modelName)

	route, err := s.resolveChannel(ctx, modelName, baseName, hint)
	if err == nil {
		return route, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return s.resolveLegacy(ctx, modelName, baseName)
}

func (s *RouterService) resolveChannel(ctx context.Context, modelName, baseName, hint string) (*Route, error) {
	channels := s.repo.Channels()

	// Full name wins over the hint-stripped base name
	lookup := modelName
	mc, err := channels.GetModelChannel(ctx, lookup)
	if errors.Is(err, sql.ErrNoRows) && baseName != modelName {
		lookup = baseName
		mc, err = channels.GetModelChannel(ctx, lookup)
	}
	if err != nil {
		return nil, err
	}

	ch, err := channels.GetChannelForModel(ctx, lookup)
	if err != nil {
		return nil, err
	}

	key, err := channels.GetActiveKeyForChannel(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	target := pickTargetModel(mc.TargetModels, baseName, hint)

	logger.Debug("Resolved model via channel mapping",
		zap.String("model", modelName),
		zap.Int64("channel_id", ch.ID),
		zap.String("target_model", target),
	)

	return &Route{
		ModelName:   modelName,
		TargetModel: target,
		Provider:    ch.Provider,
		BaseURL:     ch.BaseURL,
		APIKey:      key.APIKey,
		StorageType: ch.StorageType,
		Channel:     ch,
		Key:         key,
	}, nil
}

func (s *RouterService) resolveLegacy(ctx context.Context, modelName, baseName string) (*Route, error) {
	provider := inferProvider(baseName)
	if provider == "" {
		return nil, domain.ErrNoCredential
	}

	key, err := s.repo.Channels().GetActiveLegacyKey(ctx, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoCredential
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Resolved model via legacy key",
		zap.String("model", modelName),
		zap.String("provider", provider),
	)

	return &Route{
		ModelName:   modelName,
		TargetModel: baseName,
		Provider:    provider,
		APIKey:      key.APIKey,
		StorageType: model.StorageTypeForward,
		LegacyKey:   key,
	}, nil
}

func splitSizeHint(modelName string) (base, hint string) {
	lower := strings.ToLower(modelName)
	for _, suffix := range sizeHintSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return modelName[:len(modelName)-len(suffix)], strings.TrimPrefix(suffix, "-")
		}
	}
	return modelName, ""
}

// pickTargetModel chooses the upstream model from a mapping's
// target_models JSON. With a size hint and several candidates, the
// first candidate containing the hint wins; otherwise the first entry.
func pickTargetModel(targetModelsJSON, baseName, hint string) string {
	var targets []string
	if err := json.Unmarshal([]byte(targetModelsJSON), &targets); err != nil || len(targets) == 0 {
		return baseName
	}

	if hint != "" && len(targets) > 1 {
		for _, t := range targets {
			if strings.Contains(strings.ToLower(t), hint) {
				return t
			}
		}
	}
	return targets[0]
}

func inferProvider(modelName string) string {
	lower := strings.ToLower(modelName)
	for _, entry := range providerPrefixes {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.provider
		}
	}
	return ""
}
