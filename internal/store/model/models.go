package model

import (
	"database/sql"
	"time"
)

// Channel types.
const (
	ChannelTypeOfficial = "official"
	ChannelTypeProxy    = "proxy"
)

// Storage modes for provider-returned assets.
const (
	StorageTypeOSS     = "oss"
	StorageTypeLocal   = "local"
	StorageTypeForward = "forward"
)

// Generation task lifecycle.
const (
	TaskStatusSubmitted  = "SUBMITTED"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusSuccess    = "SUCCESS"
	TaskStatusFailure    = "FAILURE"
)

// Channel represents an upstream capability endpoint (official API or
// proxy relay) that one or more models route through.
type Channel struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Provider     string    `db:"provider" json:"provider"`
	ChannelType  string    `db:"channel_type" json:"channel_type"` // 'official', 'proxy'
	BaseURL      string    `db:"base_url" json:"base_url"`
	StorageType  string    `db:"storage_type" json:"storage_type"` // 'oss', 'local', 'forward'
	IsActive     bool      `db:"is_active" json:"is_active"`
	UseCount     int64     `db:"use_count" json:"use_count"`
	SuccessCount int64     `db:"success_count" json:"success_count"`
	FailCount    int64     `db:"fail_count" json:"fail_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ChannelKey is a credential attached to a channel. Keys with five or
// more consecutive failures are deactivated automatically.
type ChannelKey struct {
	ID               int64        `db:"id" json:"id"`
	ChannelID        int64        `db:"channel_id" json:"channel_id"`
	APIKey           string       `db:"api_key" json:"-"` // Never return the raw key
	Name             string       `db:"name" json:"name"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	UseCount         int64        `db:"use_count" json:"use_count"`
	SuccessCount     int64        `db:"success_count" json:"success_count"`
	FailCount        int64        `db:"fail_count" json:"fail_count"`
	ConsecutiveFails int64        `db:"consecutive_fails" json:"consecutive_fails"`
	LastUsedAt       sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// ModelChannel binds a public model name to a channel, optionally
// narrowing it to specific upstream target models.
type ModelChannel struct {
	ID           int64     `db:"id" json:"id"`
	ModelName    string    `db:"model_name" json:"model_name"`
	ChannelID    int64     `db:"channel_id" json:"channel_id"`
	TargetModels string    `db:"target_models" json:"target_models"` // JSON array
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LegacyAPIKey is the per-provider key table that predates channels.
// The router falls back to it when no channel mapping matches.
type LegacyAPIKey struct {
	ID         int64        `db:"id" json:"id"`
	Provider   string       `db:"provider" json:"provider"`
	APIKey     string       `db:"api_key" json:"-"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	UseCount   int64        `db:"use_count" json:"use_count"`
	LastUsedAt sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// BotAccount holds the credentials and placement of one chat-platform
// account used by the gateway pool.
type BotAccount struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	UserToken    string         `db:"user_token" json:"-"`
	GuildID      string         `db:"guild_id" json:"guild_id"`
	ChannelID    string         `db:"channel_id" json:"channel_id"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	RequestCount int64          `db:"request_count" json:"request_count"`
	ErrorCount   int64          `db:"error_count" json:"error_count"`
	LastError    sql.NullString `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// GenerationTask tracks one image-generation job from submission to a
// terminal state. Progress is a string like '42%' or '100'.
type GenerationTask struct {
	TaskID      string         `db:"task_id" json:"task_id"`
	UserID      string         `db:"user_id" json:"user_id"`
	AccountID   int64          `db:"account_id" json:"account_id"`
	Prompt      string         `db:"prompt" json:"prompt"`
	Action      string         `db:"action" json:"action"` // 'imagine', 'upscale', 'variation', ...
	Status      string         `db:"status" json:"status"`
	MessageID   sql.NullString `db:"message_id" json:"message_id,omitempty"`
	MessageHash sql.NullString `db:"message_hash" json:"message_hash,omitempty"`
	ImageURL    sql.NullString `db:"image_url" json:"image_url,omitempty"`
	StoredURL   sql.NullString `db:"stored_url" json:"stored_url,omitempty"`
	Progress    string         `db:"progress" json:"progress"`
	Buttons     sql.NullString `db:"buttons" json:"buttons,omitempty"` // JSON array
	FailReason  sql.NullString `db:"fail_reason" json:"fail_reason,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// TaskButton is one interactive component parsed from a completed
// generation message, stored serialized on the task.
type TaskButton struct {
	CustomID string `json:"custom_id"`
	Label    string `json:"label"`
	Emoji    string `json:"emoji,omitempty"`
}

// TaskPatch carries the mutable subset of a task. Nil fields are left
// untouched by UpdateTask.
type TaskPatch struct {
	Status      *string
	MessageID   *string
	MessageHash *string
	ImageURL    *string
	StoredURL   *string
	Progress    *string
	Buttons     *string
	FailReason  *string
}

// AccountPatch carries mutable bot account fields for admin updates.
type AccountPatch struct {
	Name      *string
	UserToken *string
	GuildID   *string
	ChannelID *string
	IsActive  *bool
	LastError *string
}

// RequestLog captures the outcome of one routed capability request.
type RequestLog struct {
	ID         int64         `db:"id" json:"id"`
	ModelName  string        `db:"model_name" json:"model_name"`
	Provider   string        `db:"provider" json:"provider"`
	ChannelID  sql.NullInt64 `db:"channel_id" json:"channel_id,omitempty"`
	KeyID      sql.NullInt64 `db:"key_id" json:"key_id,omitempty"`
	Success    bool          `db:"success" json:"success"`
	LatencyMS  int64         `db:"latency_ms" json:"latency_ms"`
	StatusCode int           `db:"status_code" json:"status_code"`
	ErrorText  sql.NullString `db:"error_text" json:"error_text,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// SystemConfig is a key-value row for runtime-tunable settings.
type SystemConfig struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
