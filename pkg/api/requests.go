package api

// GenerateVideoRequest starts a synchronous video generation job.
type GenerateVideoRequest struct {
	Model    string `json:"model" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
	ImageURL string `json:"image_url,omitempty" binding:"omitempty,url"`
	Duration int    `json:"duration,omitempty" binding:"omitempty,min=1,max=60"`
}

// ImagineRequest submits a prompt to the image generation pipeline.
type ImagineRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	UserID string `json:"user_id,omitempty"`
}

// ActionRequest clicks a button on a finished task, e.g. an upscale
// or a variation.
type ActionRequest struct {
	TaskID   string `json:"task_id" binding:"required"`
	CustomID string `json:"custom_id" binding:"required"`
	UserID   string `json:"user_id,omitempty"`
}

// ChannelRequest creates or updates an upstream channel.
type ChannelRequest struct {
	Name        string `json:"name" binding:"required"`
	Provider    string `json:"provider" binding:"required"`
	ChannelType string `json:"channel_type" binding:"required,oneof=official proxy"`
	BaseURL     string `json:"base_url,omitempty" binding:"omitempty,url"`
	StorageType string `json:"storage_type" binding:"required,oneof=oss local forward"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// ChannelKeyRequest attaches a credential to a channel.
type ChannelKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	Name   string `json:"name,omitempty"`
}

// ModelMappingRequest binds a public model name to a channel.
type ModelMappingRequest struct {
	ModelName    string   `json:"model_name" binding:"required"`
	ChannelID    int64    `json:"channel_id" binding:"required"`
	TargetModels []string `json:"target_models,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
}

// LegacyKeyRequest adds a per-provider key to the fallback table.
type LegacyKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// AccountRequest registers a bot account for the gateway pool.
type AccountRequest struct {
	Name      string `json:"name" binding:"required"`
	UserToken string `json:"user_token" binding:"required"`
	GuildID   string `json:"guild_id" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required"`
	IsActive  *bool  `json:"is_active,omitempty"`
}
