package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/providers"
	"github.com/davshaw/gengate/internal/server/validator"
	"github.com/davshaw/gengate/pkg/api"
)

// VideoService runs a generation request end to end.
type VideoService interface {
	Generate(ctx context.Context, modelName string, req *providers.GenerationRequest) (*providers.GenerationResult, error)
}

type VideoHandler struct {
	service VideoService
}

func NewVideoHandler(service VideoService) *VideoHandler {
	return &VideoHandler{service: service}
}

func (h *VideoHandler) CreateGeneration(c *gin.Context) {
	var req api.GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(domain.ValidationError(validator.ParseError(err)))
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req.Model, &providers.GenerationRequest{
		Prompt:   req.Prompt,
		ImageURL: req.ImageURL,
		Duration: req.Duration,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
