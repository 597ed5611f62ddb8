package v1

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/gateway"
	"github.com/davshaw/gengate/internal/server/validator"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"github.com/davshaw/gengate/pkg/api"
)

// PoolManager exposes the gateway pool to the admin surface.
type PoolManager interface {
	Status() gateway.PoolStatus
	Reload(ctx context.Context) error
}

// AdminHandler covers channel, key, mapping, account, and pool
// management.
type AdminHandler struct {
	repo store.Repository
	pool PoolManager
}

func NewAdminHandler(repo store.Repository, pool PoolManager) *AdminHandler {
	return &AdminHandler{repo: repo, pool: pool}
}

func (h *AdminHandler) idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		_ = c.Error(domain.BadRequestError("id must be an integer"))
		return 0, false
	}
	return id, true
}

// Channels

func (h *AdminHandler) ListChannels(c *gin.Context) {
	channels, err := h.repo.Channels().ListChannels(c.Request.Context())
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list channels", err))
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *AdminHandler) CreateChannel(c *gin.Context) {
	var req api.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	ch := channelFromRequest(&req)
	id, err := h.repo.Channels().CreateChannel(c.Request.Context(), ch)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to create channel", err))
		return
	}
	c.JSON(http.StatusCreated, api.CreatedResponse{ID: id})
}

func (h *AdminHandler) UpdateChannel(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	var req api.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	ch := channelFromRequest(&req)
	ch.ID = id
	if err := h.repo.Channels().UpdateChannel(c.Request.Context(), ch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = c.Error(domain.NotFoundError("channel not found"))
			return
		}
		_ = c.Error(domain.InternalError("Failed to update channel", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeleteChannel(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.repo.Channels().DeleteChannel(c.Request.Context(), id); err != nil {
		_ = c.Error(domain.InternalError("Failed to delete channel", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func channelFromRequest(req *api.ChannelRequest) *model.Channel {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &model.Channel{
		Name:        req.Name,
		Provider:    req.Provider,
		ChannelType: req.ChannelType,
		BaseURL:     req.BaseURL,
		StorageType: req.StorageType,
		IsActive:    active,
	}
}

// Channel keys

func (h *AdminHandler) ListChannelKeys(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	keys, err := h.repo.Channels().ListKeys(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list keys", err))
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *AdminHandler) CreateChannelKey(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	var req api.ChannelKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	keyID, err := h.repo.Channels().CreateKey(c.Request.Context(), &model.ChannelKey{
		ChannelID: id,
		APIKey:    req.APIKey,
		Name:      req.Name,
		IsActive:  true,
	})
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to create key", err))
		return
	}
	c.JSON(http.StatusCreated, api.CreatedResponse{ID: keyID})
}

func (h *AdminHandler) DeleteChannelKey(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.repo.Channels().DeleteKey(c.Request.Context(), id); err != nil {
		_ = c.Error(domain.InternalError("Failed to delete key", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Model mappings

func (h *AdminHandler) ListModelMappings(c *gin.Context) {
	mappings, err := h.repo.Channels().ListModelChannels(c.Request.Context())
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list model mappings", err))
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (h *AdminHandler) UpsertModelMapping(c *gin.Context) {
	var req api.ModelMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	targets := "[]"
	if len(req.TargetModels) > 0 {
		raw, err := json.Marshal(req.TargetModels)
		if err != nil {
			_ = c.Error(domain.BadRequestError("invalid target_models"))
			return
		}
		targets = string(raw)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	err := h.repo.Channels().UpsertModelChannel(c.Request.Context(), &model.ModelChannel{
		ModelName:    req.ModelName,
		ChannelID:    req.ChannelID,
		TargetModels: targets,
		IsActive:     active,
	})
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to save model mapping", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeleteModelMapping(c *gin.Context) {
	if err := h.repo.Channels().DeleteModelChannel(c.Request.Context(), c.Param("name")); err != nil {
		_ = c.Error(domain.InternalError("Failed to delete model mapping", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Legacy provider keys

func (h *AdminHandler) ListLegacyKeys(c *gin.Context) {
	keys, err := h.repo.Channels().ListLegacyKeys(c.Request.Context())
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list tokens", err))
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *AdminHandler) CreateLegacyKey(c *gin.Context) {
	var req api.LegacyKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	id, err := h.repo.Channels().CreateLegacyKey(c.Request.Context(), &model.LegacyAPIKey{
		Provider: req.Provider,
		APIKey:   req.APIKey,
		IsActive: true,
	})
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to create token", err))
		return
	}
	c.JSON(http.StatusCreated, api.CreatedResponse{ID: id})
}

func (h *AdminHandler) DeleteLegacyKey(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.repo.Channels().DeleteLegacyKey(c.Request.Context(), id); err != nil {
		_ = c.Error(domain.InternalError("Failed to delete token", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Bot accounts

func (h *AdminHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.repo.Accounts().List(c.Request.Context())
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list accounts", err))
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *AdminHandler) CreateAccount(c *gin.Context) {
	var req api.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	id, err := h.repo.Accounts().Create(c.Request.Context(), &model.BotAccount{
		Name:      req.Name,
		UserToken: req.UserToken,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		IsActive:  active,
	})
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to create account", err))
		return
	}
	c.JSON(http.StatusCreated, api.CreatedResponse{ID: id})
}

func (h *AdminHandler) UpdateAccount(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	var req api.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	patch := &model.AccountPatch{
		Name:      &req.Name,
		UserToken: &req.UserToken,
		GuildID:   &req.GuildID,
		ChannelID: &req.ChannelID,
		IsActive:  req.IsActive,
	}
	if err := h.repo.Accounts().Update(c.Request.Context(), id, patch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = c.Error(domain.NotFoundError("account not found"))
			return
		}
		_ = c.Error(domain.InternalError("Failed to update account", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeleteAccount(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.repo.Accounts().Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(domain.InternalError("Failed to delete account", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Pool and observability

func (h *AdminHandler) PoolStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Status())
}

func (h *AdminHandler) ReloadPool(c *gin.Context) {
	if err := h.pool.Reload(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.pool.Status())
}

func (h *AdminHandler) ListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tasks, err := h.repo.Tasks().List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list tasks", err))
		return
	}

	out := make([]api.TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) ListRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.repo.Requests().GetRecent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to list requests", err))
		return
	}
	c.JSON(http.StatusOK, logs)
}
