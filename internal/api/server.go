// Package api serves the engine's method surface over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logger"
)

// Engine is the part of *inference.Engine the server drives.
type Engine interface {
	LoadModel(path string, opts llm.LoadOptions) inference.Status
	UnloadModel()
	IsModelLoaded() bool
	ModelInfo() llm.ModelInfo
	ModelPath() string
	GenerateWith(ctx context.Context, prompt string, ov inference.Overrides) (*inference.Result, error)
	Config() inference.Config
	ApplyOverrides(o inference.Overrides) inference.Config
	ResetConfig() inference.Config
	SetStopSequences(seqs []string) []string
	StopSequences() []string
	ClearStopSequences()
	HasGenerationTimedOut() bool
	OnTimeout(fn func(inference.TimeoutEvent)) (unsubscribe func())
}

type Options struct {
	// LoadDefaults fills options a load request leaves unset.
	LoadDefaults llm.LoadOptions
	Log          logger.Logger
	Clock        func() time.Time
}

type Server struct {
	engine   Engine
	records  *RecordStore
	defaults llm.LoadOptions
	log      logger.Logger
	clock    func() time.Time

	timeouts    atomic.Int64
	unsubscribe func()
}

func NewServer(engine Engine, records *RecordStore, opts Options) *Server {
	if records == nil {
		records = NewRecordStore(DefaultRecordTTL)
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		engine:   engine,
		records:  records,
		defaults: opts.LoadDefaults,
		log:      opts.Log,
		clock:    opts.Clock,
	}
	s.unsubscribe = engine.OnTimeout(func(ev inference.TimeoutEvent) {
		s.timeouts.Add(1)
	})
	return s
}

// Close detaches the server from the engine and stops the record store.
func (s *Server) Close() {
	s.unsubscribe()
	s.records.Stop()
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/model", s.handleLoadModel)
	e.GET("/v1/model", s.handleModelInfo)
	e.DELETE("/v1/model", s.handleUnloadModel)
	e.GET("/v1/model/loaded", s.handleModelLoaded)

	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/generations/:id", s.handleGetGeneration)

	e.GET("/v1/sampling", s.handleGetSampling)
	e.PATCH("/v1/sampling", s.handlePatchSampling)
	e.DELETE("/v1/sampling", s.handleResetSampling)

	e.GET("/v1/stop", s.handleGetStop)
	e.PUT("/v1/stop", s.handlePutStop)
	e.DELETE("/v1/stop", s.handleClearStop)

	e.GET("/v1/status", s.handleStatus)
}

func (s *Server) handleLoadModel(c *echo.Context) error {
	req, err := decodeJSON[LoadModelRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return writeBadRequest(c, "path is required", "path")
	}

	status := s.engine.LoadModel(path, req.Options.Merge(s.defaults))
	switch status {
	case inference.StatusOK:
		info := s.engine.ModelInfo()
		return c.JSON(http.StatusOK, LoadModelResponse{Status: status.String(), Loaded: true, Model: &info})
	case inference.StatusFileNotFound:
		return writeError(c, http.StatusNotFound, "not_found_error", "model file not found", "path", status.String())
	case inference.StatusContextCreateFailed:
		return writeError(c, http.StatusInternalServerError, "server_error", "cannot create inference context", "", status.String())
	default:
		return writeError(c, http.StatusUnprocessableEntity, "invalid_request_error", "cannot open model file", "path", status.String())
	}
}

func (s *Server) handleModelInfo(c *echo.Context) error {
	if !s.engine.IsModelLoaded() {
		return writeNotFound(c, "no model loaded")
	}
	return c.JSON(http.StatusOK, s.engine.ModelInfo())
}

func (s *Server) handleUnloadModel(c *echo.Context) error {
	s.engine.UnloadModel()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleModelLoaded(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelLoadedResponse{
		Loaded: s.engine.IsModelLoaded(),
		Path:   s.engine.ModelPath(),
	})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		return writeBadRequest(c, err.Error(), paramOf(err))
	}

	started := s.clock()
	res, err := s.engine.GenerateWith(c.Request().Context(), req.Prompt, req.overrides())
	if errors.Is(err, inference.ErrModelNotLoaded) {
		return writeError(c, http.StatusConflict, "invalid_request_error", "no model loaded", "", "model_not_loaded")
	}

	rec := Record{
		ID:           newGenerationID(),
		Object:       "generation",
		CreatedAt:    started.Unix(),
		Model:        s.engine.ModelPath(),
		Prompt:       req.Prompt,
		Text:         res.Text,
		Reason:       string(res.Reason),
		TimedOut:     res.Reason == inference.ReasonTimedOut,
		StopSequence: res.StopSequence,
		Usage: Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.TokensGenerated,
			TotalTokens:      res.PromptTokens + res.TokensGenerated,
			DurationMS:       res.Duration.Milliseconds(),
			TokensPerSecond:  res.TPS,
		},
	}
	if err != nil {
		rec.Error = err.Error()
		s.log.Warn("generation failed", "id", rec.ID, "reason", rec.Reason, "error", err)
	}
	if req.Store == nil || *req.Store {
		s.records.Put(rec)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.records.Get(id)
	if !ok {
		return writeNotFound(c, "generation not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetSampling(c *echo.Context) error {
	return c.JSON(http.StatusOK, NewSamplingConfig(s.engine.Config()))
}

func (s *Server) handlePatchSampling(c *echo.Context) error {
	ov, err := decodeJSON[inference.Overrides](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	return c.JSON(http.StatusOK, NewSamplingConfig(s.engine.ApplyOverrides(ov)))
}

func (s *Server) handleResetSampling(c *echo.Context) error {
	return c.JSON(http.StatusOK, NewSamplingConfig(s.engine.ResetConfig()))
}

func (s *Server) handleGetStop(c *echo.Context) error {
	return c.JSON(http.StatusOK, StopList{Stop: s.engine.StopSequences()})
}

func (s *Server) handlePutStop(c *echo.Context) error {
	req, err := decodeJSON[StopList](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	return c.JSON(http.StatusOK, StopList{Stop: s.engine.SetStopSequences(req.Stop)})
}

func (s *Server) handleClearStop(c *echo.Context) error {
	s.engine.ClearStopSequences()
	return c.JSON(http.StatusOK, StopList{Stop: []string{}})
}

func (s *Server) handleStatus(c *echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Loaded:    s.engine.IsModelLoaded(),
		ModelPath: s.engine.ModelPath(),
		TimedOut:  s.engine.HasGenerationTimedOut(),
		Timeouts:  s.timeouts.Load(),
		Records:   s.records.Len(),
	})
}
