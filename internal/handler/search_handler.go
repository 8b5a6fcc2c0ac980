package handler

import (
	"net/http"

	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了只检索、不生成回答的处理器。
type SearchHandler struct {
	retrievalService service.RetrievalService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrievalService service.RetrievalService) *SearchHandler {
	return &SearchHandler{
		retrievalService: retrievalService,
	}
}

// Retrieve 按策略检索三个集合，附带去重后的源 PDF 列表。format=text 时返回纯文本渲染结果。
func (h *SearchHandler) Retrieve(c *gin.Context) {
	var req retrievalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[SearchHandler] 检索请求失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": nil})
		return
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = service.StrategyAll
	}
	log.Infof("[SearchHandler] 收到检索请求, query: %s, strategy: %s", req.Query, strategy)

	resp, err := h.retrievalService.Retrieve(c.Request.Context(), req.Query, strategy, req.params())
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		respondError(c, err, "检索失败")
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, service.FormatResultWithSources(resp))
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", req.Query, resp.TotalResults)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"retrieval":  resp,
			"sourcePdfs": service.UniqueSourcePdfs(resp.Results),
		},
	})
}
