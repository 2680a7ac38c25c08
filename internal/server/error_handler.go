package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

// Error codes
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeFeatureDisabled  = "FEATURE_DISABLED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
}

// errFeatureDisabled is reported when a feature flag switches a route off
var errFeatureDisabled = errors.New("feature disabled")

// classifyError maps an error to an HTTP status, error code and a message
// safe to show the caller
func classifyError(err error) (int, string, string) {
	var ve *types.ValidationError
	var nf *types.NotFoundError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, CodeValidationFailed, ve.Error()
	case errors.As(err, &nf):
		return http.StatusNotFound, CodeNotFound, nf.Error()
	case types.IsGenerationFailed(err):
		return http.StatusBadGateway, CodeGenerationFailed, "The persona could not reply. Retry to try again."
	case errors.Is(err, errFeatureDisabled):
		return http.StatusForbidden, CodeFeatureDisabled, "This feature is disabled"
	default:
		return http.StatusInternalServerError, CodeInternal, "An error occurred while processing your request"
	}
}

// ErrorHandler renders the last error attached to the request
func ErrorHandler(development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code, message := classifyError(err)

		errorResponse := ErrorResponse{
			Status:    status,
			Message:   message,
			Path:      c.Request.URL.Path,
			Timestamp: time.Now(),
			RequestID: c.GetString("RequestID"),
			ErrorCode: code,
		}
		if development {
			errorResponse.Details = err.Error()
		}

		fields := map[string]interface{}{
			"path":       errorResponse.Path,
			"request_id": errorResponse.RequestID,
			"error_code": code,
			"error":      err,
		}
		if status >= http.StatusInternalServerError {
			logging.Error("Request failed", fields)
		} else {
			logging.Debug("Request rejected", fields)
		}

		c.JSON(status, gin.H{"error": errorResponse})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs all requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		details := map[string]interface{}{
			"request_id": c.GetString("RequestID"),
		}
		if username, ok := c.Get("username"); ok {
			details["observer"] = username
		}
		logging.LogHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start), details)
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware(development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logging.Error("Panic recovered", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"panic": fmt.Sprint(err),
					"stack": string(debug.Stack()),
				})

				errorResponse := ErrorResponse{
					Status:    http.StatusInternalServerError,
					Message:   "An unexpected error occurred",
					Path:      c.Request.URL.Path,
					Timestamp: time.Now(),
					RequestID: c.GetString("RequestID"),
					ErrorCode: CodeInternal,
				}
				if development {
					errorResponse.Details = fmt.Sprintf("%v", err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorResponse})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware sets CORS headers for allowed origins
func CORSMiddleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && cfg.originAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, Accept, Origin, X-Request-ID")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
