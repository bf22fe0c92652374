package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryModel         ErrorCategory = "model"
	CategoryAuth          ErrorCategory = "authentication"
)

var categoryLabels = map[ErrorCategory]string{
	CategoryValidation:    "VALIDATION_ERROR",
	CategoryNetwork:       "NETWORK_ERROR",
	CategoryTimeout:       "TIMEOUT_ERROR",
	CategoryRateLimit:     "RATE_LIMIT_EXCEEDED",
	CategoryInternal:      "INTERNAL_ERROR",
	CategoryExternalAPI:   "EXTERNAL_API_ERROR",
	CategoryConfiguration: "CONFIGURATION_ERROR",
	CategoryModel:         "MODEL_ERROR",
	CategoryAuth:          "AUTHENTICATION_ERROR",
}

// AppError wraps an errbuilder error with the category and HTTP status used at the API boundary.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	label, ok := categoryLabels[e.Category]
	if !ok {
		label = "UNKNOWN_ERROR"
	}
	if cause := e.ErrBuilder.Unwrap(); cause != nil {
		return fmt.Sprintf("[%s] %s: %v", label, e.ErrBuilder.Msg, cause)
	}
	return fmt.Sprintf("[%s] %s", label, e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// ErrorResponse is the JSON body written for a failed request.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Response renders the error for an HTTP client without internal causes or stacks.
func (e *AppError) Response() ErrorResponse {
	label, ok := categoryLabels[e.Category]
	if !ok {
		label = "UNKNOWN_ERROR"
	}
	return ErrorResponse{
		Error:     e.ErrBuilder.Msg,
		Code:      label,
		Category:  e.Category,
		Timestamp: e.Timestamp,
		RequestID: e.RequestID,
		Fields:    e.Fields,
	}
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withDetail(builder *errbuilder.ErrBuilder, key, value string) *errbuilder.ErrBuilder {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set(key, errors.New(value))
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

func withCause(builder *errbuilder.ErrBuilder, cause error) *errbuilder.ErrBuilder {
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		builder = withDetail(builder, "validation_details", fmt.Sprintf("%v", details[0]))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewValidationErrorWithMap reports several field errors at once.
func NewValidationErrorWithMap(validationErrors map[string]string) *AppError {
	errMap := errbuilder.ErrorMap{}
	fields := make(map[string]string, len(validationErrors))
	for field, message := range validationErrors {
		fields[field] = message
		errMap.Set(field, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(message))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Multiple validation errors").
		WithDetails(errbuilder.NewErrDetails(errMap))

	appErr := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	appErr.Fields = fields
	return appErr
}

func NewNetworkError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryNetwork, http.StatusBadGateway)
}

func NewTimeoutError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

func NewRateLimitError(retryAfter string) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded"), "retry_after", retryAfter)

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewExternalAPIError wraps a failure of a remote collaborator such as the sentiment service.
func NewExternalAPIError(apiName string, cause error) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName)), "api_name", apiName)

	return NewAppError(withCause(builder, cause), CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError creates an internal server error. The stack is captured outside release mode.
func NewInternalError(message string, cause error) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error"), "internal_details", message)

	appErr := NewAppError(withCause(builder, cause), CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() != gin.ReleaseMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

func NewConfigurationError(message string, cause error) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error"), "config_details", message)

	return NewAppError(withCause(builder, cause), CategoryConfiguration, http.StatusInternalServerError)
}

// NewModelError reports an unusable model snapshot: absent, malformed, or shaped
// differently from what the caller expects. It is never recovered by guessing weights.
func NewModelError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryModel, http.StatusServiceUnavailable)
}

// NewAuthenticationError rejects a request with a missing or invalid bearer token.
func NewAuthenticationError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnauthenticated).
		WithMsg(message)

	return NewAppError(builder, CategoryAuth, http.StatusUnauthorized)
}

// IsCategory reports whether err (or anything it wraps) is an AppError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that renders the last handler error as a structured response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		appErr.RequestID = c.GetHeader("X-Request-ID")
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr.Response())
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ebErr *errbuilder.ErrBuilder
	if errors.As(err, &ebErr) {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewNetworkError("Network connection failed", err)
	}
	if strings.Contains(errMsg, "timeout") {
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with a level chosen by its category.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)
	if cause := err.ErrBuilder.Unwrap(); cause != nil {
		logEntry = logEntry.With("cause", cause)
	}

	msg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryAuth:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		logEntry.Info(msg)
	default:
		logEntry.Error(msg)
	}

	if err.StackTrace != "" && gin.Mode() == gin.DebugMode {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// SafeClose closes a resource and logs any error.
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", resourceName, "error", err)
	}
}
