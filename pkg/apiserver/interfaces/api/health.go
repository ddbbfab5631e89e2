package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	apis "calcbridge/pkg/apiserver/interfaces/api/dto/v1"
)

// StatsSource reports the runtime counters shown on the readiness probe.
type StatsSource interface {
	Snapshot() map[string]interface{}
}

// health provides health check endpoints for Kubernetes probes.
type health struct {
	Config *config.Config   `inject:""`
	Broker messaging.Broker `inject:"broker"`
	Stats  StatsSource      `inject:"stats"`
}

// NewHealth new health and readiness probes
func NewHealth() Interface {
	return &health{}
}

// RegisterRoutes registers health check endpoints.
func (h *health) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/health", h.healthCheck)
	group.GET("/healthz", h.healthCheck)
	group.GET("/ready", h.readinessCheck)
	group.GET("/readyz", h.readinessCheck)
}

// healthCheck always returns OK while the process serves HTTP.
func (h *health) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, apis.HealthResponse{Status: "healthy"})
}

// readinessCheck pings the broker and reports the bridge counters.
func (h *health) readinessCheck(c *gin.Context) {
	resp := apis.ReadyResponse{Status: "ready"}
	if h.Config != nil {
		resp.Role = h.Config.Role
	}
	if h.Stats != nil {
		resp.Stats = h.Stats.Snapshot()
	}
	if h.Broker != nil {
		if err := h.Broker.Ping(c.Request.Context()); err != nil {
			klog.V(4).Infof("readiness check failed: broker ping error: %v", err)
			resp.Status = "not ready"
			resp.Error = "broker connection failed"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
