package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"goprofile/internal"
)

// NewRouter wires the analysis endpoints onto a gin engine
func NewRouter(handler *AnalysisHandler, hub *ProgressHub, logger *internal.Logger) *gin.Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.With("HTTP")))

	router.GET("/healthz", handler.Health)

	api := router.Group("/api")
	{
		api.POST("/analyze", handler.AnalyzeUpload)
		api.POST("/analyze/files", handler.AnalyzeFiles)
		if hub != nil {
			api.GET("/events", hub.HandleEvents)
		}
	}
	return router
}

// requestLogger logs one line per request through the application logger
func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
