package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/allotment/pkg/apperr"
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

// bindError turns a gin binding failure into a payload error carrying one
// entry per failed field.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := &ValidationErrors{}
		for _, fe := range fieldErrs {
			out.Errors = append(out.Errors, ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Code:    fe.Tag(),
				Message: validationMessage(fe),
			})
		}
		return out
	}
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
			Type:    "pld_invalid",
			Message: "invalid payload",
			Errors:  vErr.Errors,
		}
	}

	switch apperr.KindOf(err) {
	case apperr.ErrBadInput:
		return http.StatusBadRequest, errorPayload{Type: "bad_input", Message: apperr.Message(err)}
	case apperr.ErrPldInvalid:
		return http.StatusBadRequest, errorPayload{Type: "pld_invalid", Message: apperr.Message(err)}
	case apperr.ErrNotAuthorized:
		return http.StatusUnauthorized, errorPayload{Type: "not_authorized", Message: apperr.Message(err)}
	case apperr.ErrForbidden:
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: apperr.Message(err)}
	case apperr.ErrNotFound:
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: apperr.Message(err)}
	case apperr.ErrConflict:
		return http.StatusConflict, errorPayload{Type: "conflict", Message: apperr.Message(err)}
	case apperr.ErrUndefinedState:
		return http.StatusInternalServerError, errorPayload{Type: "undefined_state", Message: apperr.Message(err)}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if kind := apperr.KindOf(err); kind != nil {
		code = kind.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
