package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

type handlers struct {
	pipeline Pipeline
	store    storage.Store
	maxBytes int
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"topK"`
}

type itemResponse struct {
	*storage.Item
	Chunks int `json:"chunks"`
}

// bindJSON decodes the body under the request size cap.
func (h *handlers) bindJSON(c *gin.Context, dst any) error {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.maxBytes)+bodyEnvelope)
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &rag.ValidationError{Field: "body", Message: "must not be empty"}
		}
		return &rag.ValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

// createItem handles POST /api/items.
func (h *handlers) createItem(c *gin.Context) {
	var req rag.IngestRequest
	if err := h.bindJSON(c, &req); err != nil {
		abortWithError(c, err)
		return
	}

	req, err := rag.ValidateIngest(req, h.maxBytes)
	if err != nil {
		abortWithError(c, err)
		return
	}

	item, err := h.pipeline.Ingest(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": item.ID})
}

// listItems handles GET /api/items.
func (h *handlers) listItems(c *gin.Context) {
	items, err := h.store.ListItems(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if items == nil {
		items = []*storage.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// getItem handles GET /api/items/:id.
func (h *handlers) getItem(c *gin.Context) {
	ctx := c.Request.Context()

	item, err := h.store.GetItem(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	chunks, err := h.store.ListItemChunks(ctx, item.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, itemResponse{Item: item, Chunks: len(chunks)})
}

// query handles POST /api/query.
func (h *handlers) query(c *gin.Context) {
	var req queryRequest
	if err := h.bindJSON(c, &req); err != nil {
		abortWithError(c, err)
		return
	}

	answer, err := h.pipeline.Query(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// status handles GET /api/status.
func (h *handlers) status(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
