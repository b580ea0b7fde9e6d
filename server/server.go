package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"automagick_post_producer/logger"
	"automagick_post_producer/producer"
	"automagick_post_producer/store"
)

// Producer is what the HTTP API drives.
type Producer interface {
	Settings(ctx context.Context) (producer.SettingsView, error)
	SaveSettings(ctx context.Context, in producer.SettingsInput) (producer.SettingsView, error)
	ValidateCredential(ctx context.Context, apiKey string) (bool, error)
	RunNow(ctx context.Context, trigger producer.Trigger) (producer.RunOutcome, error)
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Schedule(ctx context.Context) (producer.ScheduleView, error)
	ClearSchedule(ctx context.Context) error
}

type Server struct {
	producer Producer
	gatherer prometheus.Gatherer
	log      logger.Logger
}

func New(p Producer, gatherer prometheus.Gatherer, log logger.Logger) (*Server, error) {
	if p == nil {
		return nil, errors.New("producer required")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{producer: p, gatherer: gatherer, log: log}, nil
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/settings", s.handleSettingsGet)
	api.PUT("/settings", s.handleSettingsSave)
	api.POST("/credential/validate", s.handleValidate)
	api.POST("/runs", s.handleRunCreate)
	api.GET("/runs", s.handleRunList)
	api.GET("/schedule", s.handleScheduleGet)
	api.DELETE("/schedule", s.handleScheduleClear)
	return r
}

// --- Handlers ---

func (s *Server) handleSettingsGet(c *gin.Context) {
	v, err := s.producer.Settings(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleSettingsSave(c *gin.Context) {
	var req producer.SettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := s.producer.SaveSettings(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type validateReq struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	valid, err := s.producer.ValidateCredential(c.Request.Context(), req.APIKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func (s *Server) handleRunCreate(c *gin.Context) {
	out, err := s.producer.RunNow(c.Request.Context(), producer.TriggerManual)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRunList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.producer.Runs(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleScheduleGet(c *gin.Context) {
	v, err := s.producer.Schedule(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleScheduleClear(c *gin.Context) {
	if err := s.producer.ClearSchedule(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var invalid *producer.InvalidSettingsError
	switch {
	case errors.Is(err, producer.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, producer.ErrNotConfigured):
		status = http.StatusPreconditionFailed
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	default:
		s.log.Error("request failed", logger.String("path", c.FullPath()), logger.Err(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if path == "" {
			path = "/"
		}
		s.log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}
