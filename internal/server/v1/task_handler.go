package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/server/validator"
	"github.com/davshaw/gengate/internal/store/model"
	"github.com/davshaw/gengate/pkg/api"
)

// ImageService submits prompts and button clicks to the gateway pool.
type ImageService interface {
	Imagine(ctx context.Context, userID, prompt string) (string, error)
	Action(ctx context.Context, userID, sourceTaskID, customID string) (string, error)
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)
}

type TaskHandler struct {
	service ImageService
}

func NewTaskHandler(service ImageService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) Imagine(c *gin.Context) {
	var req api.ImagineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	taskID, err := h.service.Imagine(c.Request.Context(), req.UserID, req.Prompt)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.SubmitResponse{TaskID: taskID, Status: model.TaskStatusSubmitted})
}

func (h *TaskHandler) Action(c *gin.Context) {
	var req api.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	taskID, err := h.service.Action(c.Request.Context(), req.UserID, req.TaskID, req.CustomID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.SubmitResponse{TaskID: taskID, Status: model.TaskStatusSubmitted})
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

func taskResponse(t *model.GenerationTask) api.TaskResponse {
	resp := api.TaskResponse{
		TaskID:    t.TaskID,
		Status:    t.Status,
		Action:    t.Action,
		Prompt:    t.Prompt,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	// The re-hosted copy takes precedence over the platform CDN URL.
	if t.StoredURL.Valid && t.StoredURL.String != "" {
		resp.ImageURL = t.StoredURL.String
	} else if t.ImageURL.Valid {
		resp.ImageURL = t.ImageURL.String
	}

	if t.FailReason.Valid {
		resp.FailReason = t.FailReason.String
	}

	if t.Buttons.Valid && t.Buttons.String != "" {
		var buttons []model.TaskButton
		if err := json.Unmarshal([]byte(t.Buttons.String), &buttons); err == nil {
			for _, b := range buttons {
				resp.Buttons = append(resp.Buttons, api.TaskButton{
					CustomID: b.CustomID,
					Label:    b.Label,
					Emoji:    b.Emoji,
				})
			}
		}
	}

	return resp
}
