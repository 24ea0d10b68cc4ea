package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/idverify/internal/queue"
	"github.com/your-org/idverify/internal/storage"
)

type SystemHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "idverify-api"})
}

// Readyz reports whether the service can accept submissions: Postgres for
// request rows, MinIO to stat the submitted images and NATS to enqueue the
// task. The pending task count rides along for dashboards.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	check := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	check("postgres", h.db.Ping(ctx))
	check("minio", h.minio.Ping(ctx))
	check("nats", h.producer.Ping())

	resp := gin.H{"checks": checks}
	if depth, err := h.producer.QueueDepth(ctx); err == nil {
		resp["pending_tasks"] = depth
	}

	if !ready {
		resp["status"] = "not ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = "ready"
	c.JSON(http.StatusOK, resp)
}
