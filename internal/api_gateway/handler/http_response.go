package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/middleware"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/shared"
)

// Response represents a standard API response. Data is always present on
// success, as null when the operation produced nothing.
type Response struct {
	Data          interface{} `json:"data"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResponse omits the data field entirely.
type errorResponse struct {
	Error         *ErrorInfo `json:"error"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Data:          data,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{
		Error:         &ErrorInfo{Code: code, Message: message},
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthorized sends a 401 Unauthorized response with an error
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// RespondForbidden sends a 403 Forbidden response with an error
func RespondForbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Forbidden"
	}
	RespondWithError(c, http.StatusForbidden, "FORBIDDEN", message)
}

// RespondNotFound sends a 404 Not Found response with an error
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

// RespondConflict sends a 409 Conflict response with an error
func RespondConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, "CONFLICT", message)
}

// RespondServiceUnavailable sends a 503 when the authoritative store cannot be reached
func RespondServiceUnavailable(c *gin.Context) {
	RespondWithError(c, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE", "The ledger store is unavailable, retry later")
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// badInput lists validation failures reported back to the caller verbatim.
var badInput = []error{
	shared.ErrInvalidTransactionType,
	ledger.ErrInvalidAmount,
	ledger.ErrInvalidRewards,
	ledger.ErrMissingDate,
	ledger.ErrUnknownCategory,
	ledger.ErrEmptyCategory,
	recurring.ErrMissingStartDate,
	recurring.ErrInvalidFireRequest,
}

// RespondError maps a service error onto the error taxonomy's status codes.
// Invariant violations and unexpected failures are logged at error level.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrInvariantViolation):
		logger.Error("Invariant violation",
			"path", c.FullPath(),
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err,
		)
		RespondConflict(c, err.Error())
	case errors.Is(err, ledger.ErrDuplicateCategory):
		RespondConflict(c, err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		RespondForbidden(c, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		RespondNotFound(c, err.Error())
	case errors.Is(err, shared.ErrPersistenceUnavailable):
		logger.Warn("Persistence unavailable",
			"path", c.FullPath(),
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err,
		)
		RespondServiceUnavailable(c)
	case isBadInput(err):
		RespondBadRequest(c, err.Error())
	default:
		logger.Error("Request failed",
			"path", c.FullPath(),
			"correlation_id", middleware.GetCorrelationID(c),
			"error", err,
		)
		RespondInternalError(c)
	}
}

func isBadInput(err error) bool {
	for _, target := range badInput {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// actorOrAbort returns the authenticated member or answers 401.
func actorOrAbort(c *gin.Context) (ledger.Member, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondUnauthorized(c, "")
	}
	return actor, ok
}
