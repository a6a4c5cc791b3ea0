package fhir

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Error is a FHIR error carrying the HTTP status and the OperationOutcome
// issue code it renders as.
type Error struct {
	Status      int
	Code        string
	Diagnostics string
	Issues      []OperationOutcomeIssue
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, http.StatusText(e.Status), e.Diagnostics)
}

// Outcome renders the error as an OperationOutcome.
func (e *Error) Outcome() *OperationOutcome {
	b := NewOutcomeBuilder().AddIssue(IssueSeverityError, e.Code, e.Diagnostics)
	return b.AddIssues(e.Issues).Build()
}

func NewResourceNotFoundError(resourceType, id string) *Error {
	return &Error{
		Status:      http.StatusNotFound,
		Code:        IssueTypeNotFound,
		Diagnostics: fmt.Sprintf("Resource %s/%s is not known", resourceType, id),
	}
}

func NewInvalidRequestError(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: IssueTypeInvalid, Diagnostics: msg}
}

func NewMethodNotAllowedError(msg string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Code: IssueTypeNotSupported, Diagnostics: msg}
}

func NewUnprocessableEntityError(msg string, issues ...OperationOutcomeIssue) *Error {
	return &Error{
		Status:      http.StatusUnprocessableEntity,
		Code:        IssueTypeProcessing,
		Diagnostics: msg,
		Issues:      issues,
	}
}

// IsNotFound reports whether err is a resource-not-found error.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// StatusOf returns the HTTP status of a FHIR or echo error, 500 otherwise.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every error returned by a FHIR route as an
// OperationOutcome. Unexpected errors are logged and hidden from the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var outcome *OperationOutcome

		var fe *Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &fe):
			status = fe.Status
			outcome = fe.Outcome()
		case errors.As(err, &he):
			status = he.Code
			outcome = NewOperationOutcome(IssueSeverityError, issueCodeForStatus(status), fmt.Sprint(he.Message))
		default:
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled FHIR error")
			outcome = InternalErrorOutcome("internal server error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		if werr := c.JSON(status, outcome); werr != nil {
			logger.Error().Err(werr).Msg("failed to write OperationOutcome")
		}
	}
}

func issueCodeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return IssueTypeNotFound
	case http.StatusMethodNotAllowed:
		return IssueTypeNotSupported
	case http.StatusBadRequest:
		return IssueTypeInvalid
	case http.StatusConflict:
		return IssueTypeConflict
	default:
		return IssueTypeProcessing
	}
}
