// Package routers
package routers

import (
	"database/sql"
	"time"

	"relay-api/internal/handlers/chat"
	"relay-api/internal/inflight"
	"relay-api/internal/llm"
	"relay-api/internal/middleware"
	"relay-api/internal/records"
	"relay-api/internal/shared"
	"relay-api/internal/stream"
	"relay-api/internal/users"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ChatRouterConfig struct {
	ModelConfigPath string
	Debug           bool

	// Zero values fall back to the documented defaults in shared constants.
	FirstTokenTimeout time.Duration
	StreamTimeout     time.Duration
	InFlightTTL       time.Duration
	SweepInterval     time.Duration
}

// RegisterChatRoutes constructs the chat stack (model registry, in-flight
// registry, record cache, orchestrator) and mounts it under /v1. Everything
// is built here and injected; nothing is package-level.
func RegisterChatRoutes(e *echo.Group, wdb *sql.DB, rdb *sql.DB, redisClient *redis.Client, log *zap.SugaredLogger, cfg ChatRouterConfig) (func(), error) {
	modelCfg, err := llm.LoadConfig(cfg.ModelConfigPath)
	if err != nil {
		return nil, err
	}
	models := llm.NewRegistry(modelCfg, log, cfg.Debug)

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = shared.DefaultSweepInterval
	}
	registry := inflight.NewRegistry(log, cfg.InFlightTTL, sweepInterval)
	recordCache := records.NewCache(log, wdb)

	orch := stream.NewOrchestrator(registry, models, recordCache, log, stream.Config{
		FirstTokenTimeout: cfg.FirstTokenTimeout,
		StreamTimeout:     cfg.StreamTimeout,
	})
	handler := chat.NewHandler(orch, models, log)

	um := users.NewUserManager(redisClient, rdb, log)
	umw := middleware.NewUserMiddleware(um)

	v1 := e.Group("v1")
	extractUser := v1.Group("", umw.ExtractUser)
	requireUser := v1.Group("", umw.ExtractUser, umw.RequireUser)

	extractUser.GET("/models", handler.HandleModels)
	requireUser.POST("/chat/stream", handler.HandleStream)

	shutdown := func() {
		registry.Shutdown()
		recordCache.Shutdown()
	}
	return shutdown, nil
}
