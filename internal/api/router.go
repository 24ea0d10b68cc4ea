package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/idverify/internal/api/handlers"
	"github.com/your-org/idverify/internal/api/ws"
	"github.com/your-org/idverify/internal/auth"
	"github.com/your-org/idverify/internal/queue"
	"github.com/your-org/idverify/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket for live decisions
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Verifications
	verH := handlers.NewVerificationHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	v1.POST("/verifications", verH.Submit)
	v1.GET("/verifications", verH.List)
	v1.GET("/verifications/:id", verH.Get)
	v1.POST("/verifications/:id/similar", verH.Similar)

	return r
}
