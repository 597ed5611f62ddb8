package server

import (
	"github.com/davshaw/gengate/internal/server/middleware"
	v1 "github.com/davshaw/gengate/internal/server/v1"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler())

	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	rateLimiter := middleware.NewRateLimiter(
		s.config.RateLimit.RequestsPerSecond,
		s.config.RateLimit.Burst,
		s.logger,
	)

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.config.Server.APIKeys))
	api.Use(rateLimiter.Middleware())
	{
		videoHandler := v1.NewVideoHandler(s.videos)
		api.POST("/videos/generations", videoHandler.CreateGeneration)

		taskHandler := v1.NewTaskHandler(s.images)
		api.POST("/images/imagine", taskHandler.Imagine)
		api.POST("/images/action", taskHandler.Action)
		api.GET("/images/tasks/:id", taskHandler.GetTask)
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.Auth(s.config.Server.APIKeys))
	{
		adminHandler := v1.NewAdminHandler(s.repo, s.pool)

		admin.GET("/channels", adminHandler.ListChannels)
		admin.POST("/channels", adminHandler.CreateChannel)
		admin.PUT("/channels/:id", adminHandler.UpdateChannel)
		admin.DELETE("/channels/:id", adminHandler.DeleteChannel)
		admin.GET("/channels/:id/keys", adminHandler.ListChannelKeys)
		admin.POST("/channels/:id/keys", adminHandler.CreateChannelKey)
		admin.DELETE("/keys/:id", adminHandler.DeleteChannelKey)

		admin.GET("/models", adminHandler.ListModelMappings)
		admin.PUT("/models", adminHandler.UpsertModelMapping)
		admin.DELETE("/models/:name", adminHandler.DeleteModelMapping)

		admin.GET("/tokens", adminHandler.ListLegacyKeys)
		admin.POST("/tokens", adminHandler.CreateLegacyKey)
		admin.DELETE("/tokens/:id", adminHandler.DeleteLegacyKey)

		admin.GET("/accounts", adminHandler.ListAccounts)
		admin.POST("/accounts", adminHandler.CreateAccount)
		admin.PUT("/accounts/:id", adminHandler.UpdateAccount)
		admin.DELETE("/accounts/:id", adminHandler.DeleteAccount)

		admin.GET("/pool", adminHandler.PoolStatus)
		admin.POST("/pool/reload", adminHandler.ReloadPool)

		admin.GET("/tasks", adminHandler.ListTasks)
		admin.GET("/requests", adminHandler.ListRequests)
	}
}
