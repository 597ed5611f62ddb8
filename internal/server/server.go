package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/server/v1"
	"github.com/davshaw/gengate/internal/server/validator"
	"github.com/davshaw/gengate/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server wires the HTTP surface: public generation endpoints plus the
// admin management API.
type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger

	repo   store.Repository
	videos v1.VideoService
	images v1.ImageService
	pool   v1.PoolManager
}

func New(
	cfg *config.Config,
	logger *zap.Logger,
	repo store.Repository,
	videos v1.VideoService,
	images v1.ImageService,
	pool v1.PoolManager,
) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.Init()

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(otelgin.Middleware("gengate"))

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		repo:   repo,
		videos: videos,
		images: images,
		pool:   pool,
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
