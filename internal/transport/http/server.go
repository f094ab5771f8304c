package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
	"github.com/asepsopiyan/keris-lite/internal/transport/http/handler"
	"github.com/asepsopiyan/keris-lite/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(requestLogger(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	askHandler := handler.NewAskHandler(app.RAG)
	authHandler := handler.NewAuthHandler(app.Auth)

	adminCfg := handler.AdminConfig{
		Ingest:     app.Ingest,
		Collection: app.Store,
		IngestDir:  app.Config.Ingest.Dir,
	}
	if app.Publisher != nil {
		adminCfg.Publisher = app.Publisher
	}
	if app.Records != nil {
		adminCfg.Records = app.Records
	}
	adminHandler := handler.NewAdminHandler(adminCfg)

	v1 := router.Group("/api/v1")
	v1.POST("/chat", askHandler.Ask)

	authGroup := v1.Group("/auth")
	authGroup.POST("/token", authHandler.Token)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	protected := v1.Group("")
	protected.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	protected.GET("/collection", adminHandler.CollectionStats)

	admin := protected.Group("/admin")
	admin.POST("/ingest", adminHandler.Ingest)
	admin.POST("/reindex", adminHandler.Reindex)
	admin.POST("/documents", adminHandler.Upload)
	admin.GET("/ingest-records", adminHandler.IngestRecords)
	admin.GET("/ingest-records/:file", adminHandler.IngestRecord)

	return router
}

const requestIDHeader = "X-Request-ID"

// requestLogger tags every request with an id, echoed in the response header.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		started := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()
		logger.Info("http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
