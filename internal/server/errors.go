package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/halfnote/halfnote/internal/classifier"
	"github.com/halfnote/halfnote/internal/enrichment"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	pipelinedomain "github.com/halfnote/halfnote/internal/pipeline/domain"
	"github.com/halfnote/halfnote/internal/queue"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
	ErrRateLimited  = errors.New("rate_limited")
)

type validationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *validationError) Error() string { return e.Message }

func newValidationError(field, code, message string) error {
	return &validationError{Field: field, Code: code, Message: message}
}

func invalidRequestError() error {
	return newValidationError("body", "invalid_request", "request body is malformed")
}

// AbortWithError maps domain errors onto the HTTP status contract: 400 for
// bad input, 401 auth, 404 unknown memo, 429 rate limits, 500 for
// misconfiguration and downstream failures.
func AbortWithError(c *gin.Context, err error) {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve})
	case errors.Is(err, pipelinedomain.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, ErrNotFound),
		errors.Is(err, memodomain.ErrMemoNotFound),
		errors.Is(err, memodomain.ErrMediaItemNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrRateLimited), errors.Is(err, quotadomain.ErrQuotaExceeded):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
	case errors.Is(err, enrichment.ErrSyncCompletionDisabled):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "synchronous completion mode is not enabled"})
	case errors.Is(err, classifier.ErrProvider),
		errors.Is(err, pipelinedomain.ErrPersistence),
		errors.Is(err, queue.ErrDispatch):
		zap.L().Error("request failed downstream", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		zap.L().Error("unhandled request error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
