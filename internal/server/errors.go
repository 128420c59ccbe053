package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/wunderling/tutorledger/internal/ledger/domain"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
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
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal_error")
	ErrNotFound     = errors.New("not_found")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ledgerdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, postingdomain.ErrRunInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a posting run is already in progress",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ledgerdomain.ErrNotConnected):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "accounting service is not connected",
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, sessiondomain.ErrInvalidRequest),
		errors.Is(err, sessiondomain.ErrInvalidStatus),
		errors.Is(err, sessiondomain.ErrInvalidTransition),
		errors.Is(err, sessiondomain.ErrImmutableRecord),
		errors.Is(err, profiledomain.ErrInvalidRequest),
		errors.Is(err, settingsdomain.ErrInvalidRequest):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, sessiondomain.ErrNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, postingdomain.ErrRunNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, sessiondomain.ErrInvalidRequest),
		errors.Is(err, profiledomain.ErrInvalidRequest),
		errors.Is(err, settingsdomain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return "request"
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_status":
		return "unknown session status"
	case "invalid_transition":
		return "posted sessions cannot change status"
	case "immutable_record":
		return "posted sessions cannot be edited"
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}

// classifyErrorForLog feeds the request logger so expected client errors
// stay quiet at debug level.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", validationErrorCode(err)
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ledgerdomain.ErrUnauthorized):
		return "unauthorized", "unauthorized"
	default:
		return "internal_error", err.Error()
	}
}
