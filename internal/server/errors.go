package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/history/csvstore"
	"github.com/smallbiznis/creatorpay/internal/export"
	"github.com/smallbiznis/creatorpay/internal/importer"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isBatchError(err):
		// Batch errors name the offending row, so the message is kept.
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_batch",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, rewarddomain.ErrRunLocked):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "another run is updating the history",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isBatchError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, rewarddomain.ErrMissingField),
		errors.Is(err, rewarddomain.ErrDuplicateRecord),
		errors.Is(err, rewarddomain.ErrEmptyBatch),
		errors.Is(err, rewarddomain.ErrInvalidPolicy),
		errors.Is(err, rewarddomain.ErrInvalidRunID),
		errors.Is(err, rewarddomain.ErrUnknownTable),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, importer.ErrNoFiles),
		errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrMissingColumns),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, csvstore.ErrMissingKeyColumn),
		errors.Is(err, historydomain.ErrEmptyKey),
		errors.Is(err, historydomain.ErrInvalidTier):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, rewarddomain.ErrRunNotFound),
		errors.Is(err, historydomain.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the response type and a stable error code for
// the access log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if vErr := asValidationErrors(err); vErr != nil {
		code := "invalid_request"
		if len(vErr.Errors) > 0 {
			code = vErr.Errors[0].Code
		}
		return "validation_error", code
	}

	_, payload := mapError(err)
	if payload.Type == "internal_error" {
		return payload.Type, "internal_error"
	}
	return payload.Type, rootCode(err)
}

// rootCode unwraps err down to the sentinel that carries its snake_case code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
