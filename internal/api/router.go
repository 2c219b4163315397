// Package api serves the notes pipeline over HTTP with gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

// bodyEnvelope is the allowance for JSON framing on top of MaxRequestBytes.
const bodyEnvelope = 64 << 10

// Pipeline is the part of *rag.Pipeline the HTTP API uses.
type Pipeline interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*storage.Item, error)
	Query(ctx context.Context, question string, topK int) (*rag.Answer, error)
	Stats(ctx context.Context) (*rag.Stats, error)
	Health(ctx context.Context) error
}

// Config holds router dependencies.
type Config struct {
	Pipeline Pipeline
	Store    storage.Store

	// MCP, Health and Landing are mounted as-is when set.
	MCP     http.Handler
	Health  http.Handler
	Landing http.Handler

	// MaxRequestBytes caps text content. 0 disables the check.
	MaxRequestBytes int
	CORSOrigins     []string
	Logger          *slog.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	h := &handlers{
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		maxBytes: cfg.MaxRequestBytes,
	}

	api := router.Group("/api")
	{
		api.POST("/items", h.createItem)
		api.GET("/items", h.listItems)
		api.GET("/items/:id", h.getItem)
		api.POST("/query", h.query)
		api.GET("/status", h.status)
	}

	if cfg.Health != nil {
		router.GET("/health", gin.WrapH(cfg.Health))
	}
	if cfg.Landing != nil {
		router.GET("/", gin.WrapH(cfg.Landing))
	}
	if cfg.MCP != nil {
		router.Any("/mcp", gin.WrapH(cfg.MCP))
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader, "Mcp-Session-Id"},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader, "Mcp-Session-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}
