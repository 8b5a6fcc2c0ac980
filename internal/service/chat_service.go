package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/llm"
	"multimodal-rag-go/pkg/log"

	"github.com/gorilla/websocket"
)

// ChatService 定义了流式问答的接口。
type ChatService interface {
	StreamResponse(ctx context.Context, req QueryRequest, ws llm.MessageWriter, shouldStop func() bool) (*model.QueryResult, error)
}

type chatService struct {
	queryService QueryService
	generator    GenerationService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(queryService QueryService, generator GenerationService) ChatService {
	return &chatService{
		queryService: queryService,
		generator:    generator,
	}
}

// StreamResponse 完成检索后把 LLM 输出以 {"chunk": "..."} 分块推送，结束时发送 sources 与 completion 通知。
// 返回的 error 仅来自参数校验与检索，LLM 失败会作为回答文本下发。
func (s *chatService) StreamResponse(ctx context.Context, req QueryRequest, ws llm.MessageWriter, shouldStop func() bool) (*model.QueryResult, error) {
	prepared, err := s.queryService.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	result := newQueryResult(prepared, req.IncludeSourcePdfs)

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if prepared.Retrieval.Results.IsEmpty() {
		log.Warnf("[ChatService] [%s] 没有检索到任何内容", prepared.RequestID)
		result.Answer = NoResultsMessage(prepared.Options.Language)
		result.ProcessingTimeSeconds = time.Since(prepared.Started).Seconds()
		_ = interceptor.WriteMessage(websocket.TextMessage, []byte(result.Answer))
	} else {
		answer, err := s.generator.StreamAnswer(ctx, prepared.Retrieval.Query, prepared.Retrieval.Results, prepared.Options, interceptor)
		if err != nil {
			return nil, err
		}
		if answer.Error != "" || !answer.HasContext {
			// 这两种情况下没有分块被推送，回答整体作为一个分块下发
			_ = interceptor.WriteMessage(websocket.TextMessage, []byte(answer.Answer))
		}
		applyAnswer(result, prepared, answer, s.generator.VisionActive(prepared.Options))
	}

	sendSources(ws, result)
	sendCompletion(ws)
	log.Infof("[ChatService] [%s] 流式响应完成, 共 %d 字符, 耗时 %.2fs", prepared.RequestID, answerBuilder.Len(), result.ProcessingTimeSeconds)
	return result, nil
}

// wsWriterInterceptor 是对 websocket 连接的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendSources 下发不含回答正文的结果元信息，前端据此渲染引用。
func sendSources(ws llm.MessageWriter, result *model.QueryResult) {
	notif := map[string]interface{}{
		"type":            "sources",
		"requestId":       result.RequestID,
		"retrievalMethod": result.RetrievalMethod,
		"sourcesCount":    result.SourcesCount,
		"sources":         result.Sources,
		"sourcePdfs":      result.SourcePdfs,
		"visionUsed":      result.VisionUsed,
		"hasContext":      result.HasContext,
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws llm.MessageWriter) {
	_ = ws.WriteMessage(websocket.TextMessage, CompletionNotice())
}

// CompletionNotice 返回流式响应结束时的通知报文。
func CompletionNotice() []byte {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	return b
}
