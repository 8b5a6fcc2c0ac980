package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/llm"
	"multimodal-rag-go/pkg/log"
)

// ErrUnknownMode 表示请求了未定义的生成模式。
var ErrUnknownMode = errors.New("unknown generation mode")

// Mode 是回答生成模式。
type Mode string

const (
	ModeSimple     Mode = "simple"
	ModeCitations  Mode = "citations"
	ModeStructured Mode = "structured"
)

// ParseMode 解析生成模式，空串返回 fallback。
func ParseMode(s string, fallback Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case ModeSimple:
		return ModeSimple, nil
	case ModeCitations:
		return ModeCitations, nil
	case ModeStructured:
		return ModeStructured, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

const (
	textPreviewLen  = 200
	tablePreviewLen = 300
)

// GenerateOptions 控制一次回答生成。
type GenerateOptions struct {
	Mode           Mode
	Language       Language
	IncludeSources bool
	// UseVision 为 nil 时默认开启，最终仍受全局 vision.enabled 约束。
	UseVision *bool
}

// GenerationService 基于检索结果生成回答。
type GenerationService interface {
	// GenerateAnswer 只对模式或语言非法返回 error；LLM 调用失败被转换为回答文本。
	GenerateAnswer(ctx context.Context, query string, result model.RetrievalResult, opts GenerateOptions) (*model.Answer, error)
	// StreamAnswer 与 GenerateAnswer 相同，但把 LLM 输出分块写入 writer。
	StreamAnswer(ctx context.Context, query string, result model.RetrievalResult, opts GenerateOptions, writer llm.MessageWriter) (*model.Answer, error)
	VisionActive(opts GenerateOptions) bool
}

type generationService struct {
	llmClient llm.Client
	formatter *ContextFormatter
	vision    VisionService
	genCfg    config.LLMGenerationConfig
}

// NewGenerationService 创建一个新的 GenerationService 实例，vision 可以为 nil。
func NewGenerationService(llmClient llm.Client, vision VisionService, visionEnabled bool, genCfg config.LLMGenerationConfig) GenerationService {
	return &generationService{
		llmClient: llmClient,
		formatter: NewContextFormatter(vision, visionEnabled),
		vision:    vision,
		genCfg:    genCfg,
	}
}

func (s *generationService) VisionActive(opts GenerateOptions) bool {
	return s.formatter.VisionActive(boolOr(opts.UseVision, true))
}

type preparedPrompt struct {
	messages []llm.Message
	answer   *model.Answer
}

// prepare 校验参数、构建上下文与消息。上下文为空时返回的 answer 即为最终结果。
func (s *generationService) prepare(ctx context.Context, query string, result model.RetrievalResult, opts GenerateOptions) (*preparedPrompt, error) {
	if _, ok := systemPrompts[opts.Mode]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
	if opts.Language != LanguageIndonesian && opts.Language != LanguageEnglish {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, opts.Language)
	}

	visionActive := s.VisionActive(opts)
	log.Infof("[Generator] 开始生成回答, mode: %s, language: %s, vision: %t, query: '%s'", opts.Mode, opts.Language, visionActive, query)

	answer := &model.Answer{
		Language:     string(opts.Language),
		SourcesCount: result.Counts(),
	}

	contextText := s.formatter.Format(ctx, result, query, boolOr(opts.UseVision, true), opts.Language)
	if strings.TrimSpace(contextText) == "" {
		log.Warnf("[Generator] 没有可用的上下文, 不调用 LLM")
		answer.Answer = noContextMessages[opts.Mode].in(opts.Language)
		answer.HasContext = false
		if opts.IncludeSources {
			answer.Sources = []model.Source{}
		}
		return &preparedPrompt{answer: answer}, nil
	}

	answer.HasContext = true
	answer.Model = s.llmClient.Model()
	if visionActive {
		answer.VisionModel = s.vision.Model()
	}
	if opts.IncludeSources {
		answer.Sources = ExtractSources(result, visionActive)
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompts[opts.Mode].in(opts.Language)},
		{Role: "user", Content: renderUserPrompt(opts.Mode, opts.Language, contextText, EscapeBraces(query))},
	}
	return &preparedPrompt{messages: messages, answer: answer}, nil
}

func (s *generationService) params() *llm.GenerationParams {
	temperature := s.genCfg.Temperature
	maxTokens := s.genCfg.MaxTokens
	return &llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}
}

func (s *generationService) GenerateAnswer(ctx context.Context, query string, result model.RetrievalResult, opts GenerateOptions) (*model.Answer, error) {
	prepared, err := s.prepare(ctx, query, result, opts)
	if err != nil {
		return nil, err
	}
	if prepared.messages == nil {
		return prepared.answer, nil
	}

	start := time.Now()
	text, err := s.llmClient.Chat(ctx, prepared.messages, s.params())
	if err != nil {
		return s.failed(prepared.answer, opts.Language, err), nil
	}
	prepared.answer.Answer = text
	log.Infof("[Generator] 回答生成成功 (%d chars, %.2fs)", len(text), time.Since(start).Seconds())
	return prepared.answer, nil
}

func (s *generationService) StreamAnswer(ctx context.Context, query string, result model.RetrievalResult, opts GenerateOptions, writer llm.MessageWriter) (*model.Answer, error) {
	prepared, err := s.prepare(ctx, query, result, opts)
	if err != nil {
		return nil, err
	}
	if prepared.messages == nil {
		return prepared.answer, nil
	}

	collector := &collectingWriter{next: writer}
	if err := s.llmClient.StreamChatMessages(ctx, prepared.messages, s.params(), collector); err != nil {
		return s.failed(prepared.answer, opts.Language, err), nil
	}
	prepared.answer.Answer = collector.String()
	return prepared.answer, nil
}

// failed 把 LLM 调用错误写入回答文本，hasContext 保持为 true。
func (s *generationService) failed(answer *model.Answer, lang Language, err error) *model.Answer {
	log.Errorf("[Generator] 回答生成失败: %v", err)
	answer.Answer = fmt.Sprintf(generationErrorMessage.in(lang), err.Error())
	answer.Error = err.Error()
	return answer
}

// ExtractSources 生成可引用来源列表，编号与上下文中的标记一致。
// 图片的 analyzedWithVision 反映本次调用的 vision 设置，而非单张图片是否分析成功。
func ExtractSources(result model.RetrievalResult, analyzedWithVision bool) []model.Source {
	sources := make([]model.Source, 0, result.Total())
	for i, item := range result.Text {
		sources = append(sources, model.Source{
			Type:           model.ContentText,
			ID:             fmt.Sprintf("TEXT-%d", i+1),
			ContentPreview: truncateRunes(item.Content, textPreviewLen) + "...",
			Page:           item.PageLabel(),
			Metadata:       item.Metadata,
		})
	}
	for i, item := range result.Images {
		vision := analyzedWithVision
		sources = append(sources, model.Source{
			Type:               model.ContentImage,
			ID:                 fmt.Sprintf("IMAGE-%d", i+1),
			Description:        item.Content,
			URL:                item.ImageURL(),
			Page:               item.PageLabel(),
			AnalyzedWithVision: &vision,
			Metadata:           item.Metadata,
		})
	}
	for i, item := range result.Tables {
		hasHTML := item.HasHTML()
		sources = append(sources, model.Source{
			Type:           model.ContentTable,
			ID:             fmt.Sprintf("TABLE-%d", i+1),
			ContentPreview: truncateRunes(item.Content, tablePreviewLen) + "...",
			Page:           item.PageLabel(),
			HasHTML:        &hasHTML,
			Metadata:       item.Metadata,
		})
	}
	return sources
}

// collectingWriter 在转发分块的同时拼接完整回答。
type collectingWriter struct {
	next llm.MessageWriter
	sb   strings.Builder
}

func (w *collectingWriter) WriteMessage(messageType int, data []byte) error {
	w.sb.Write(data)
	if w.next == nil {
		return nil
	}
	return w.next.WriteMessage(messageType, data)
}

func (w *collectingWriter) String() string {
	return w.sb.String()
}
