package handler

import (
	"net/http"
	"strconv"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与源文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
	}
}

// ListDocuments 处理获取已入库源 PDF 列表的请求。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.docService.ListDocuments(page, size)
	if err != nil {
		log.Error("ListDocuments: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    result,
	})
}

// GenerateDownloadURL 处理生成源 PDF 下载链接的请求。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	pdfURL := c.Query("url")
	if pdfURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少文档 URL", "data": nil})
		return
	}

	downloadInfo, err := h.docService.GenerateDownloadURL(c.Request.Context(), pdfURL)
	if err != nil {
		log.Warnf("GenerateDownloadURL: failed for %s, err: %v", pdfURL, err)
		respondError(c, err, "生成下载链接失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件下载链接生成成功",
		"data":    downloadInfo,
	})
}

// Ingest 接收版面解析服务的输出并写入向量集合，async=true 时经 Kafka 异步处理。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var extraction model.ExtractionResult
	if err := c.ShouldBindJSON(&extraction); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的解析结果", "data": nil})
		return
	}
	async := c.Query("async") == "true"

	receipt, err := h.docService.Ingest(c.Request.Context(), extraction, async)
	if err != nil {
		log.Errorf("Ingest: failed, source: %s, err: %v", extraction.Metadata.Source, err)
		respondError(c, err, "入库失败")
		return
	}
	status := http.StatusOK
	if receipt.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": "success",
		"data":    receipt,
	})
}

// ResetCollections 清空三个向量集合与源文档登记表。
func (h *DocumentHandler) ResetCollections(c *gin.Context) {
	if err := h.docService.ResetCollections(c.Request.Context()); err != nil {
		log.Error("ResetCollections: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重置集合失败", "data": nil})
		return
	}
	log.Info("ResetCollections: 所有集合已重置")
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "集合已重置",
	})
}
