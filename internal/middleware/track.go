// Package middleware defines the base echo middleware chain: request
// tracking, panic recovery, and user authentication.
package middleware

import (
	"fmt"
	"time"

	"relay-api/internal/ctx"
	"relay-api/internal/metrics"
	"relay-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
			logger := log.With(
				"request_id", "req_"+reqID,
			)
			logger = logger.With("externalid", c.Request().Header.Get("X-Relay-Request-Id"))

			logValues := &ctx.ContextLogValues{
				RequestID:  reqID,
				ExternalID: c.Request().Header.Get("X-Relay-Request-Id"),
				StartTime:  time.Now(),
				Path:       c.Path(),
			}
			cc := &ctx.Context{Context: c, Log: logger, Reqid: reqID, LogValues: logValues}
			start := time.Now()
			err := next(cc)
			logValues.RequestDuration = time.Since(start)
			logValues.StatusCode = cc.Response().Status

			switch logValues.LogLevel {
			case "ERROR":
				cc.Log.Errorw("end_of_request", "values", logValues)
			default:
				cc.Log.Infow("end_of_request", "status_code", fmt.Sprintf("%d", cc.Response().Status), "duration", logValues.RequestDuration.String())
			}
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return err
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return c.String(500, shared.ErrInternalServerError.Err.Error())
		},
	})
}
