// Package chat exposes the streaming chat endpoint: it validates the parsed
// request, then hands the connection to the stream orchestrator.
package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"relay-api/internal/ctx"
	"relay-api/internal/llm"
	"relay-api/internal/shared"
	"relay-api/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Handler struct {
	orch     *stream.Orchestrator
	models   *llm.Registry
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewHandler(orch *stream.Orchestrator, models *llm.Registry, log *zap.SugaredLogger) *Handler {
	return &Handler{
		orch:     orch,
		models:   models,
		validate: validator.New(),
		log:      log,
	}
}

// HandleStream serves POST /v1/chat/stream. Requests rejected here (bad
// body, unknown model) get a plain JSON error; once the NDJSON headers are
// out, all outcomes are stream events or silence.
func (h *Handler) HandleStream(cc echo.Context) error {
	c := cc.(*ctx.Context)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.LogValues.AddError(err)
		return c.JSON(http.StatusBadRequest, shared.ErrorBody{
			Message: "failed to read request body",
			Object:  "error",
			Type:    string(shared.CodeInvalidRequest),
			Code:    http.StatusBadRequest,
		})
	}

	var req shared.StreamRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.LogValues.AddError(errors.Join(shared.ErrInvalidRequest, err))
		return c.JSON(http.StatusBadRequest, shared.ErrorBody{
			Message: "invalid request body",
			Object:  "error",
			Type:    string(shared.CodeInvalidRequest),
			Code:    http.StatusBadRequest,
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		c.LogValues.AddError(errors.Join(shared.ErrInvalidRequest, err))
		return c.JSON(http.StatusBadRequest, shared.ErrorBody{
			Message: err.Error(),
			Object:  "error",
			Type:    string(shared.CodeInvalidRequest),
			Code:    http.StatusBadRequest,
		})
	}

	// The request is immutable once accepted; fill defaults before Prepare.
	if req.Channel == "" {
		req.Channel = shared.DefaultChannel
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, err := h.orch.Prepare(&req, c.User)
	if err != nil {
		c.LogValues.AddError(err)
		var rerr *shared.RequestError
		if errors.As(err, &rerr) {
			return c.JSON(rerr.StatusCode, shared.ErrorBody{
				Message: rerr.Err.Error(),
				Object:  "error",
				Type:    string(shared.CodeInvalidRequest),
				Code:    rerr.StatusCode,
			})
		}
		return c.JSON(500, shared.ErrorBody{
			Message: "internal server error",
			Object:  "error",
			Type:    string(shared.CodeInternalError),
			Code:    500,
		})
	}

	stream.SetHeaders(c.Response().Header())
	c.Response().WriteHeader(http.StatusOK)
	enc := stream.NewEncoder(c.Response())

	res := sess.Run(c.Request().Context(), enc)

	c.LogValues.Stream = &ctx.StreamInfo{
		Model:            req.Model,
		Channel:          req.Channel,
		TerminalState:    string(res.State),
		TotalTokens:      res.TotalTokens,
		TimeToFirstToken: res.TimeToFirstToken,
		TotalTime:        res.Elapsed,
	}
	if res.Err != nil {
		c.LogValues.AddError(res.Err)
		if res.State == stream.StateError {
			c.LogValues.LogLevel = "ERROR"
		}
	}
	return nil
}

type ModelList struct {
	Data []llm.ModelConfig `json:"data"`
}

// HandleModels serves GET /v1/models.
func (h *Handler) HandleModels(cc echo.Context) error {
	c := cc.(*ctx.Context)
	return c.JSON(200, ModelList{Data: h.models.List()})
}
