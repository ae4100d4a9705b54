package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portal/internal/authorization"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/identity"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/validation"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

// errorPayload is the {"error": {...}} envelope of the operator API.
type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// errorRule maps a family of domain errors onto one HTTP status.
type errorRule struct {
	status  int
	kind    string
	message string
	errs    []error
}

var errorRules = []errorRule{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, identity.ErrMissingToken, identity.ErrInvalidToken,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden, invoicedomain.ErrAccessDenied, tenantdomain.ErrMembershipNotActive,
	}},
	{http.StatusConflict, "conflict", "conflict", []error{
		invoicedomain.ErrAlreadyExists, tenantdomain.ErrAlreadyExists, subscriptiondomain.ErrInvalidTransition,
	}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		clientdomain.ErrNotFound,
		subscriptiondomain.ErrSubscriptionNotFound,
		invoicedomain.ErrInvoiceNotFound,
		tenantdomain.ErrNotFound,
		tenantdomain.ErrMembershipNotFound,
		gorm.ErrRecordNotFound,
	}},
}

// invalidValueErrors are sentinel errors reported as a single-field
// validation failure. The field comes from an "invalid_<field>" code.
var invalidValueErrors = []error{
	clientdomain.ErrInvalidID,
	projectdomain.ErrInvalidClient,
	subscriptiondomain.ErrInvalidClient,
	subscriptiondomain.ErrInvalidPrice,
	subscriptiondomain.ErrInvalidStatus,
	subscriptiondomain.ErrInvalidSubscription,
	invoicedomain.ErrInvalidClient,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrMissingClient,
}

// ErrorHandlingMiddleware renders the last handler error as the envelope,
// unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, gin.H{"error": payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// abortWithMessage writes the flat {"error": msg} body used by the
// authentication layer and the billing trigger endpoints.
func abortWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func invalidRequestError() error {
	return &ValidationErrors{Errors: []ValidationError{{
		Field:   "request",
		Code:    "invalid_request",
		Message: "invalid request",
	}}}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	for _, rule := range errorRules {
		if matchesAny(err, rule.errs) {
			return rule.status, errorPayload{Type: rule.kind, Message: rule.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// asValidationErrors collects explicit ValidationErrors, validator field
// errors from the services, and the invalid-value sentinels.
func asValidationErrors(err error) *ValidationErrors {
	if err == nil {
		return nil
	}
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}

	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
		for _, fe := range fieldErrs {
			out.Errors = append(out.Errors, ValidationError{Field: fe.Field, Code: fe.Code, Message: fe.Message})
		}
		return out
	}

	for _, sentinel := range invalidValueErrors {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			field, _ := strings.CutPrefix(code, "invalid_")
			if field == code {
				field = ""
			}
			return &ValidationErrors{Errors: []ValidationError{{
				Field:   field,
				Code:    code,
				Message: "invalid value",
			}}}
		}
	}
	return nil
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyErrorForLog feeds the request logger a low-cardinality type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
