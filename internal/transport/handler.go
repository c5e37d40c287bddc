package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/sku-image-audit/internal/config"
	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/logger"
	"github.com/anime-shed/sku-image-audit/internal/report"
	"github.com/anime-shed/sku-image-audit/pkg/models"
)

// Auditor runs audit batches with server-side defaults
type Auditor interface {
	Audit(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*models.AuditReport, error)
	Thresholds() models.Thresholds
	MaxConcurrency() int
}

// MetricsSource exposes aggregated batch metrics
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

type AuditRequest struct {
	Skus           []string           `json:"skus" binding:"required"`
	Thresholds     *models.Thresholds `json:"thresholds,omitempty"`
	MaxConcurrency int                `json:"max_concurrency,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Report views for CSV output
const (
	viewImages  = "images"
	viewSummary = "summary"
)

func NewHandler(auditor Auditor, metrics MetricsSource, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/thresholds", getThresholds(auditor))
	r.GET("/metrics", metricsSnapshot(metrics))
	r.POST("/audit", runAudit(auditor, cfg))

	return r
}

func runAudit(a Auditor, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing audit request")

		format := strings.ToLower(c.DefaultQuery("format", "json"))
		view := strings.ToLower(c.DefaultQuery("view", viewImages))
		if format != "json" && format != "csv" {
			respondError(c, http.StatusBadRequest, "invalid format", apperrors.NewValidationError(fmt.Sprintf("unknown format %q", format), nil))
			return
		}
		if view != viewImages && view != viewSummary {
			respondError(c, http.StatusBadRequest, "invalid view", apperrors.NewValidationError(fmt.Sprintf("unknown view %q", view), nil))
			return
		}

		var req AuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		skus := cleanSkus(req.Skus)
		if len(skus) == 0 {
			err := apperrors.NewValidationError("at least one non-blank SKU is required", nil)
			respondError(c, err.StatusCode, "invalid request", err)
			return
		}

		thresholds := a.Thresholds()
		if req.Thresholds != nil {
			thresholds = *req.Thresholds
		}
		// A request may lower the configured concurrency, never raise it
		maxConcurrency := a.MaxConcurrency()
		if req.MaxConcurrency > 0 && req.MaxConcurrency < maxConcurrency {
			maxConcurrency = req.MaxConcurrency
		}

		audit, err := a.Audit(ctx, skus, thresholds, maxConcurrency)
		if err != nil {
			respondError(c, determineStatusCode(err), "audit failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"run_id":             audit.RunID,
			"sku_count":          len(skus),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"ok":                 audit.Tally.OK,
			"flagged":            audit.Tally.Flagged,
		}).Info("Audit request completed successfully")

		if format == "json" {
			c.JSON(http.StatusOK, audit)
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+audit.RunID+"-"+view+".csv"))
		c.Status(http.StatusOK)
		if view == viewSummary {
			err = report.WriteSummary(c.Writer, audit.Summaries)
		} else {
			err = report.WriteReport(c.Writer, audit.Rows)
		}
		if err != nil {
			logger.WithError(err).WithField("run_id", audit.RunID).Error("Failed to stream CSV report")
		}
	}
}

// cleanSkus trims values and drops blanks, like the CSV reader does
func cleanSkus(raw []string) []string {
	skus := make([]string, 0, len(raw))
	for _, sku := range raw {
		if sku = strings.TrimSpace(sku); sku != "" {
			skus = append(skus, sku)
		}
	}
	return skus
}

func getThresholds(a Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"thresholds":      a.Thresholds(),
			"max_concurrency": a.MaxConcurrency(),
		})
	}
}

func metricsSnapshot(m MetricsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, m.GetMetrics())
	}
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
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
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
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		code = http.StatusRequestEntityTooLarge
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %s", message, apperrors.Describe(err)),
	})
}
