package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-analyzer/internal/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	router.Use(
		gin.Recovery(),
		requestLogger(),
		errorHandlingMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/sessions", handler.CreateSession)
		api.DELETE("/sessions/:id", handler.DeleteSession)
		api.POST("/sessions/:id/documents", handler.UploadDocuments)
		api.POST("/sessions/:id/questions", handler.AskQuestion)
		api.GET("/sessions/:id/history", handler.History)
	}

	// processing and generation can take a while
	writeTimeout := cfg.Timeouts.Embed + cfg.Timeouts.Generate*time.Duration(max(cfg.Retry.MaxAttempts, 1)) + cfg.Timeouts.Search

	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout + 10*time.Second,
	}
}
