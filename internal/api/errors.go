package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bull/notes-rag/internal/fetch"
	"github.com/bull/notes-rag/internal/provider"
	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *rag.ValidationError
		tooLarge   *http.MaxBytesError
		provErr    *provider.Error
		fetchErr   *rag.FetchError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrFetchUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, fetch.ErrUnsupportedContent), errors.Is(err, fetch.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.As(err, &provErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the mapped status and records err for the logger.
// Internal errors are not echoed to the client.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	resp := errorResponse{Error: err.Error(), RequestID: GetRequestID(c)}
	var validation *rag.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}
