package handler

import (
	"net/http"
	"time"

	"multimodal-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 返回服务状态与各集合文档数量。
type HealthHandler struct {
	queryService  service.QueryService
	backend       string
	visionEnabled bool
	started       time.Time
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(queryService service.QueryService, backend string, visionEnabled bool) *HealthHandler {
	return &HealthHandler{
		queryService:  queryService,
		backend:       backend,
		visionEnabled: visionEnabled,
		started:       time.Now(),
	}
}

// Health 处理健康检查请求。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"backend":       h.backend,
		"visionEnabled": h.visionEnabled,
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"collections":   h.queryService.Stats(c.Request.Context()),
	})
}
