package tools

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/8agana/uni-sqlite/daos"
)

// Error codes for SDK consumption. These codes are stable and can be used
// for programmatic error handling.
const (
	CodePathTraversal        = "PATH_TRAVERSAL"
	CodeInvalidExtension     = "INVALID_EXTENSION"
	CodeDatabaseNotFound     = "DATABASE_NOT_FOUND"
	CodeNotConnected         = "NOT_CONNECTED"
	CodeEmptyStatement       = "EMPTY_STATEMENT"
	CodeMultipleStatements   = "MULTIPLE_STATEMENTS"
	CodeCommandNotAllowed    = "COMMAND_NOT_ALLOWED"
	CodeUnsupportedParameter = "UNSUPPORTED_PARAMETER"
	CodeRowShapeMismatch     = "ROW_SHAPE_MISMATCH"
	CodeNotReadQuery         = "NOT_READ_QUERY"
	CodeInvalidIdentifier    = "INVALID_IDENTIFIER"
	CodeTransactionFailed    = "TRANSACTION_FAILED"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeEngineError          = "ENGINE_ERROR"
)

// APIError is the structured error response body. Code is a stable
// identifier for client error handling, Message describes what went wrong,
// and Hint gives actionable guidance.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// RespErr writes a structured error response to the ResponseWriter.
func RespErr(w http.ResponseWriter, err error) {
	status, apiErr := BuildAPIError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// BuildAPIError maps an error to an HTTP status code and structured APIError.
func BuildAPIError(err error) (int, APIError) {
	var stepErr *daos.StepError
	if errors.As(err, &stepErr) {
		status, inner := BuildAPIError(stepErr.Err)
		return status, APIError{
			Code:    CodeTransactionFailed,
			Message: err.Error(),
			Hint:    "The transaction was rolled back; no step left any effect. Underlying cause: " + inner.Code,
		}
	}

	switch {
	case errors.Is(err, daos.ErrPathTraversal):
		return http.StatusBadRequest, APIError{
			Code:    CodePathTraversal,
			Message: err.Error(),
			Hint:    "Paths must resolve inside the configured data directory.",
		}
	case errors.Is(err, daos.ErrInvalidExtension):
		return http.StatusBadRequest, APIError{
			Code:    CodeInvalidExtension,
			Message: err.Error(),
			Hint:    "Database and backup files use .db, .sqlite, or .sqlite3; exports and imports use .csv.",
		}
	case errors.Is(err, daos.ErrNoParentDir):
		return http.StatusBadRequest, APIError{
			Code:    CodePathTraversal,
			Message: err.Error(),
			Hint:    "The parent directory of the requested path must already exist.",
		}
	case errors.Is(err, daos.ErrDatabaseNotFound):
		return http.StatusNotFound, APIError{
			Code:    CodeDatabaseNotFound,
			Message: err.Error(),
			Hint:    "Pass create_if_missing=true to create a new database file.",
		}
	case errors.Is(err, daos.ErrNotConnected):
		return http.StatusConflict, APIError{
			Code:    CodeNotConnected,
			Message: err.Error(),
			Hint:    "Call /connect before running database operations.",
		}
	case errors.Is(err, daos.ErrEmptyStatement):
		return http.StatusBadRequest, APIError{
			Code:    CodeEmptyStatement,
			Message: err.Error(),
		}
	case errors.Is(err, daos.ErrMultipleStatements):
		return http.StatusBadRequest, APIError{
			Code:    CodeMultipleStatements,
			Message: err.Error(),
			Hint:    "Submit one statement per query, or use /transaction for an atomic sequence.",
		}
	case errors.Is(err, daos.ErrCommandNotAllowed):
		return http.StatusForbidden, APIError{
			Code:    CodeCommandNotAllowed,
			Message: err.Error(),
			Hint:    "Only SELECT, INSERT, UPDATE, DELETE, CREATE, ALTER, DROP, PRAGMA, and EXPLAIN are accepted.",
		}
	case errors.Is(err, daos.ErrUnsupportedParameter):
		return http.StatusBadRequest, APIError{
			Code:    CodeUnsupportedParameter,
			Message: err.Error(),
			Hint:    "Parameters must be scalar: null, boolean, number, or string.",
		}
	case errors.Is(err, daos.ErrRowShapeMismatch):
		return http.StatusBadRequest, APIError{
			Code:    CodeRowShapeMismatch,
			Message: err.Error(),
			Hint:    "Every row must have exactly one value per listed column.",
		}
	case errors.Is(err, daos.ErrReadonlyUnsupported):
		return http.StatusBadRequest, APIError{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
			Hint:    "Readonly connections require the sqlite3 driver.",
		}
	case errors.Is(err, daos.ErrNotReadQuery):
		return http.StatusBadRequest, APIError{
			Code:    CodeNotReadQuery,
			Message: err.Error(),
			Hint:    "Only row-returning statements can be exported.",
		}
	case errors.Is(err, daos.ErrEmptyIdentifier),
		errors.Is(err, daos.ErrIdentifierTooLong),
		errors.Is(err, daos.ErrInvalidCharacter):
		return http.StatusBadRequest, APIError{
			Code:    CodeInvalidIdentifier,
			Message: err.Error(),
			Hint:    "Table and column names must start with a letter or underscore and contain only letters, digits, and underscores.",
		}
	default:
		return http.StatusInternalServerError, APIError{
			Code:    CodeEngineError,
			Message: err.Error(),
		}
	}
}
