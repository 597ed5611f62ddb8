package store

import (
	"context"

	"github.com/davshaw/gengate/internal/store/model"
)

// Repository is the main contract for the data layer.
type Repository interface {
	Channels() ChannelRepository
	Tasks() TaskRepository
	Accounts() AccountRepository
	Requests() RequestRepository
	Config() ConfigRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type ChannelRepository interface {
	// GetChannelForModel resolves the active channel bound to a model name.
	GetChannelForModel(ctx context.Context, modelName string) (*model.Channel, error)
	// GetModelChannel returns the mapping row for a model name.
	GetModelChannel(ctx context.Context, modelName string) (*model.ModelChannel, error)
	// GetActiveKeyForChannel picks the least-used active key on a channel.
	GetActiveKeyForChannel(ctx context.Context, channelID int64) (*model.ChannelKey, error)
	// GetActiveLegacyKey picks the least-used active legacy key for a provider.
	GetActiveLegacyKey(ctx context.Context, provider string) (*model.LegacyAPIKey, error)

	// RecordChannelUsage bumps use_count and the success or fail counter.
	RecordChannelUsage(ctx context.Context, channelID int64, success bool) error
	// RecordKeyUsage bumps key counters. Five consecutive failures
	// deactivate the key; a success resets the streak.
	RecordKeyUsage(ctx context.Context, keyID int64, success bool) error
	// RecordLegacyKeyUsage bumps use_count and last_used_at.
	RecordLegacyKeyUsage(ctx context.Context, keyID int64) error

	ListLegacyKeys(ctx context.Context) ([]model.LegacyAPIKey, error)
	CreateLegacyKey(ctx context.Context, key *model.LegacyAPIKey) (int64, error)
	DeleteLegacyKey(ctx context.Context, id int64) error

	ListChannels(ctx context.Context) ([]model.Channel, error)
	CreateChannel(ctx context.Context, ch *model.Channel) (int64, error)
	UpdateChannel(ctx context.Context, ch *model.Channel) error
	DeleteChannel(ctx context.Context, id int64) error

	ListKeys(ctx context.Context, channelID int64) ([]model.ChannelKey, error)
	CreateKey(ctx context.Context, key *model.ChannelKey) (int64, error)
	DeleteKey(ctx context.Context, id int64) error

	ListModelChannels(ctx context.Context) ([]model.ModelChannel, error)
	// UpsertModelChannel inserts or replaces the mapping for a model name.
	UpsertModelChannel(ctx context.Context, mc *model.ModelChannel) error
	DeleteModelChannel(ctx context.Context, modelName string) error
}

type TaskRepository interface {
	Create(ctx context.Context, task *model.GenerationTask) error
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)
	// GetByMessageID finds a non-terminal task on an account by the
	// platform message it is bound to.
	GetByMessageID(ctx context.Context, accountID int64, messageID string) (*model.GenerationTask, error)
	// GetPending returns SUBMITTED and IN_PROGRESS tasks for an account,
	// most recent first.
	GetPending(ctx context.Context, accountID int64) ([]model.GenerationTask, error)
	// Update applies the non-nil fields of the patch.
	Update(ctx context.Context, taskID string, patch *model.TaskPatch) error
	List(ctx context.Context, limit int) ([]model.GenerationTask, error)
}

type AccountRepository interface {
	Get(ctx context.Context, id int64) (*model.BotAccount, error)
	ListActive(ctx context.Context) ([]model.BotAccount, error)
	List(ctx context.Context) ([]model.BotAccount, error)
	Create(ctx context.Context, acc *model.BotAccount) (int64, error)
	Update(ctx context.Context, id int64, patch *model.AccountPatch) error
	Delete(ctx context.Context, id int64) error
	// IncrementUsage bumps request_count, and error_count on failure.
	IncrementUsage(ctx context.Context, id int64, success bool) error
}

type RequestRepository interface {
	// Log stores a completed routed request.
	Log(ctx context.Context, log *model.RequestLog) error
	// GetRecent returns the last N logs.
	GetRecent(ctx context.Context, limit int) ([]model.RequestLog, error)
}

type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
