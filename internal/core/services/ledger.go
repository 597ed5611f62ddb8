package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

// LedgerService records the outcome of each routed call against the
// channel, key, and request log tables. Key accounting enforces the
// consecutive-failure cutoff in the store layer.
type LedgerService struct {
	repo store.Repository
}

func NewLedgerService(repo store.Repository) *LedgerService {
	return &LedgerService{repo: repo}
}

func (s *LedgerService) RecordSuccess(ctx context.Context, route *Route, latency time.Duration, statusCode int) {
	s.record(ctx, route, true, latency, statusCode, "")
}

func (s *LedgerService) RecordFailure(ctx context.Context, route *Route, latency time.Duration, statusCode int, errText string) {
	s.record(ctx, route, false, latency, statusCode, errText)
}

func (s *LedgerService) record(ctx context.Context, route *Route, success bool, latency time.Duration, statusCode int, errText string) {
	err := s.repo.WithTx(ctx, func(repo store.Repository) error {
		channels := repo.Channels()

		if route.Channel != nil {
			if err := channels.RecordChannelUsage(ctx, route.Channel.ID, success); err != nil {
				return err
			}
		}
		if route.Key != nil {
			if err := channels.RecordKeyUsage(ctx, route.Key.ID, success); err != nil {
				return err
			}
		}
		if route.LegacyKey != nil {
			if err := channels.RecordLegacyKeyUsage(ctx, route.LegacyKey.ID); err != nil {
				return err
			}
		}

		entry := &model.RequestLog{
			ModelName:  route.ModelName,
			Provider:   route.Provider,
			Success:    success,
			LatencyMS:  latency.Milliseconds(),
			StatusCode: statusCode,
		}
		if route.Channel != nil {
			entry.ChannelID = sql.NullInt64{Int64: route.Channel.ID, Valid: true}
		}
		if route.Key != nil {
			entry.KeyID = sql.NullInt64{Int64: route.Key.ID, Valid: true}
		}
		if errText != "" {
			entry.ErrorText = sql.NullString{String: errText, Valid: true}
		}
		return repo.Requests().Log(ctx, entry)
	})
	if err != nil {
		// Accounting must not fail the request itself
		logger.Warn("Failed to record usage",
			zap.String("model", route.ModelName),
			zap.Bool("success", success),
			zap.Error(err),
		)
	}
}
