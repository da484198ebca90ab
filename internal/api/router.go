package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceoverlay/internal/api/handlers"
	"github.com/your-org/faceoverlay/internal/api/ws"
	"github.com/your-org/faceoverlay/internal/auth"
	"github.com/your-org/faceoverlay/internal/stream"
)

type RouterConfig struct {
	APIKey  string
	Manager *stream.Manager
	// NATS is checked by /readyz; nil when running without a broker.
	NATS handlers.Pinger
	Hub  *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.NATS, cfg.Manager)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket overlay frames
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Streams
	streamH := handlers.NewStreamHandler(cfg.Manager)
	v1.POST("/streams", streamH.Create)
	v1.GET("/streams", streamH.List)
	v1.GET("/streams/:id", streamH.Get)
	v1.POST("/streams/:id/stop", streamH.Stop)
	v1.DELETE("/streams/:id", streamH.Delete)
	v1.PUT("/streams/:id/facing", streamH.SetFacing)
	v1.PUT("/streams/:id/viewport", streamH.SetViewport)
	v1.GET("/streams/:id/overlay", streamH.Overlay)
	v1.POST("/streams/:id/detections", streamH.SubmitDetections)

	return r
}
