package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/service"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MetricsSource exposes the observer counters.
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

// HandlerConfig holds the HTTP limits.
type HandlerConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type handler struct {
	svc     service.ExtractionService
	metrics MetricsSource
	cfg     HandlerConfig
}

func NewHandler(svc service.ExtractionService, metrics MetricsSource, cfg HandlerConfig) http.Handler {
	r := gin.New()
	h := &handler{svc: svc, metrics: metrics, cfg: cfg}

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)

	v1 := r.Group("/v1")
	v1.POST("/extractions", h.extractUpload)
	v1.POST("/extractions/url", h.extractURL)
	v1.POST("/extractions/async", h.enqueueURL)
	v1.GET("/extractions/:id", h.getExtraction)
	v1.GET("/extractions/:id/csv", h.exportCSV)
	v1.POST("/extractions/:id/persist", h.persist)
	v1.GET("/metrics", h.getMetrics)

	return r
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
}

func (h *handler) extractUpload(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		respondError(c, uploadStatusCode(err), "missing image file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, uploadStatusCode(err), "failed to read image", err)
		return
	}

	var opts *models.ExtractionOptionsRequest
	if raw := c.PostForm("options"); raw != "" {
		opts = &models.ExtractionOptionsRequest{}
		if err := json.Unmarshal([]byte(raw), opts); err != nil {
			respondError(c, http.StatusBadRequest, "invalid options", err)
			return
		}
	}

	report, err := h.svc.ExtractUpload(ctx, data, header.Filename, opts)
	if err != nil {
		respondAppError(c, "extraction failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) extractURL(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.URLExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	report, err := h.svc.ExtractURL(ctx, req)
	if err != nil {
		respondAppError(c, "extraction failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) enqueueURL(c *gin.Context) {
	var req models.URLExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	report, err := h.svc.EnqueueURL(c.Request.Context(), req)
	if err != nil {
		respondAppError(c, "failed to queue extraction", err)
		return
	}
	c.Header("Location", "/v1/extractions/"+report.ID)
	c.JSON(http.StatusAccepted, report)
}

func (h *handler) getExtraction(c *gin.Context) {
	report, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondAppError(c, "failed to load extraction", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) exportCSV(c *gin.Context) {
	data, name, err := h.svc.ExportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondAppError(c, "failed to export extraction", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (h *handler) persist(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.PersistRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
	}

	report, err := h.svc.Persist(ctx, c.Param("id"), req)
	if err != nil {
		respondAppError(c, "failed to persist results", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) getMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetMetrics())
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}).Info("Request handled")
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func uploadStatusCode(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func respondAppError(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
