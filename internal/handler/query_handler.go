// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"multimodal-rag-go/internal/middleware"
	"multimodal-rag-go/internal/repository"
	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// retrievalRequest 是检索参数的请求体，未提供的字段使用各策略的默认值。
type retrievalRequest struct {
	Query    string `json:"query" binding:"required"`
	Strategy string `json:"strategy"`
	K        int    `json:"k" binding:"omitempty,min=1,max=20"`

	KText   *int                   `json:"k_text" binding:"omitempty,min=1,max=20"`
	KImages *int                   `json:"k_images" binding:"omitempty,min=1,max=10"`
	KTables *int                   `json:"k_tables" binding:"omitempty,min=1,max=10"`
	Filter  map[string]interface{} `json:"filter"`

	TextWeight  *float64 `json:"text_weight" binding:"omitempty,gte=0,lte=1"`
	ImageWeight *float64 `json:"image_weight" binding:"omitempty,gte=0,lte=1"`
	TableWeight *float64 `json:"table_weight" binding:"omitempty,gte=0,lte=1"`

	FetchK        *int     `json:"fetch_k" binding:"omitempty,min=1,max=100"`
	LambdaMult    *float64 `json:"lambda_mult" binding:"omitempty,gte=0,lte=1"`
	IncludeText   *bool    `json:"include_text"`
	IncludeImages *bool    `json:"include_images"`
	IncludeTables *bool    `json:"include_tables"`
}

func (r retrievalRequest) params() service.RetrievalParams {
	return service.RetrievalParams{
		K:             r.K,
		KText:         r.KText,
		KImages:       r.KImages,
		KTables:       r.KTables,
		Filter:        r.Filter,
		TextWeight:    r.TextWeight,
		ImageWeight:   r.ImageWeight,
		TableWeight:   r.TableWeight,
		FetchK:        r.FetchK,
		LambdaMult:    r.LambdaMult,
		IncludeText:   r.IncludeText,
		IncludeImages: r.IncludeImages,
		IncludeTables: r.IncludeTables,
	}
}

// queryRequest 是问答接口的请求体。
type queryRequest struct {
	retrievalRequest
	Mode              string `json:"generation_mode"`
	Language          string `json:"language"`
	UseVision         *bool  `json:"use_vision"`
	IncludeSources    *bool  `json:"include_sources"`
	IncludeSourcePdfs *bool  `json:"include_source_pdfs"`
}

func (r queryRequest) toService(requestID string) service.QueryRequest {
	return service.QueryRequest{
		RequestID:         requestID,
		Query:             r.Query,
		Strategy:          r.Strategy,
		Params:            r.params(),
		Mode:              r.Mode,
		Language:          r.Language,
		UseVision:         r.UseVision,
		IncludeSources:    r.IncludeSources == nil || *r.IncludeSources,
		IncludeSourcePdfs: r.IncludeSourcePdfs == nil || *r.IncludeSourcePdfs,
	}
}

// statusFor 把业务错误映射为 HTTP 状态码，参数类错误为 400。
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrInvalidParams),
		errors.Is(err, service.ErrUnknownStrategy),
		errors.Is(err, service.ErrUnknownMode),
		errors.Is(err, service.ErrUnknownLanguage),
		errors.Is(err, vectorstore.ErrUnknownContentType):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAsyncIngestUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
		return
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}

// QueryHandler 负责问答与统计接口。
type QueryHandler struct {
	queryService service.QueryService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// Query 处理一次完整的检索 + 生成请求。
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}

	result, err := h.queryService.Query(c.Request.Context(), req.toService(c.GetString(middleware.RequestIDKey)))
	if err != nil {
		log.Errorf("[QueryHandler] 处理问题失败: %v", err)
		respondError(c, err, "处理问题失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// Stats 返回三个集合的文档数量。
func (h *QueryHandler) Stats(c *gin.Context) {
	stats := h.queryService.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": stats})
}

// Strategies 列出可用的检索策略。
func (h *QueryHandler) Strategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": service.Strategies})
}
