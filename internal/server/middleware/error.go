package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/pkg/api"
	"go.uber.org/zap"
)

// ErrorHandler renders errors attached to the context by handlers.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// RFC 9457 problems serialize at the root
		var problem *domain.Problem
		if errors.As(err, &problem) {
			if problem.Log != nil {
				logger.Error("Request failed", zap.Error(problem.Log), zap.String("path", c.Request.URL.Path))
			}
			c.JSON(problem.Status, problem)
			c.Abort()
			return
		}

		var appErr *domain.Error
		if errors.As(err, &appErr) {
			if appErr.Log != nil {
				logger.Error("Request failed", zap.Error(appErr.Log), zap.String("path", c.Request.URL.Path))
			}
			c.JSON(appErr.Code, api.ErrorResponse{Message: appErr.Message})
			c.Abort()
			return
		}

		// Sentinels that surface without a wrapper still map to
		// meaningful status codes.
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Message: err.Error()})
		case errors.Is(err, domain.ErrNoCredential):
			c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Message: err.Error()})
		case errors.Is(err, domain.ErrNoConnection):
			c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Message: err.Error()})
		default:
			logger.Error("Unhandled error", zap.Error(err), zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Message: "An unexpected error occurred."})
		}
		c.Abort()
	}
}
