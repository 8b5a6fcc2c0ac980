package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/log"

	"github.com/google/uuid"
)

// ErrInvalidQuery 表示问题为空或超出长度上限。
var ErrInvalidQuery = errors.New("invalid query")

// QueryRequest 是一次完整问答的输入。
type QueryRequest struct {
	RequestID         string
	Query             string
	Strategy          string
	Params            RetrievalParams
	Mode              string
	Language          string
	UseVision         *bool
	IncludeSources    bool
	IncludeSourcePdfs bool
}

// QueryService 协调检索与生成，对应一次问答请求。
type QueryService interface {
	Query(ctx context.Context, req QueryRequest) (*model.QueryResult, error)
	// Prepare 完成校验与检索，供流式接口在生成前复用。
	Prepare(ctx context.Context, req QueryRequest) (*PreparedQuery, error)
	Stats(ctx context.Context) model.CollectionStats
}

// PreparedQuery 是校验与检索完成后的中间结果。
type PreparedQuery struct {
	RequestID string
	Retrieval *model.RetrievalResponse
	Options   GenerateOptions
	Started   time.Time
}

type queryService struct {
	retriever       RetrievalService
	generator       GenerationService
	store           vectorstore.Store
	maxQueryLength  int
	defaultMode     Mode
	defaultLanguage Language
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(retriever RetrievalService, generator GenerationService, store vectorstore.Store, maxQueryLength int, defaultMode, defaultLanguage string) QueryService {
	mode, err := ParseMode(defaultMode, ModeSimple)
	if err != nil {
		mode = ModeSimple
	}
	lang, err := ParseLanguage(defaultLanguage, LanguageIndonesian)
	if err != nil {
		lang = LanguageIndonesian
	}
	return &queryService{
		retriever:       retriever,
		generator:       generator,
		store:           store,
		maxQueryLength:  maxQueryLength,
		defaultMode:     mode,
		defaultLanguage: lang,
	}
}

// NewRequestID 返回 8 位的短请求 ID。
func NewRequestID() string {
	return uuid.NewString()[:8]
}

func (s *queryService) Prepare(ctx context.Context, req QueryRequest) (*PreparedQuery, error) {
	started := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = NewRequestID()
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if s.maxQueryLength > 0 && utf8.RuneCountInString(query) > s.maxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, s.maxQueryLength)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyAll
	}
	if err := ValidateStrategy(strategy); err != nil {
		return nil, err
	}
	if err := ValidateParams(req.Params); err != nil {
		return nil, err
	}
	mode, err := ParseMode(req.Mode, s.defaultMode)
	if err != nil {
		return nil, err
	}
	lang, err := ParseLanguage(req.Language, s.defaultLanguage)
	if err != nil {
		return nil, err
	}

	log.Infof("[QueryService] [%s] 收到问题: '%s', strategy: %s, mode: %s, language: %s", requestID, query, strategy, mode, lang)
	retrieval, err := s.retriever.Retrieve(ctx, query, strategy, req.Params)
	if err != nil {
		return nil, err
	}
	return &PreparedQuery{
		RequestID: requestID,
		Retrieval: retrieval,
		Options: GenerateOptions{
			Mode:           mode,
			Language:       lang,
			IncludeSources: req.IncludeSources,
			UseVision:      req.UseVision,
		},
		Started: started,
	}, nil
}

// Query 执行检索与生成。检索结果为空时直接返回固定提示，不调用 LLM。
func (s *queryService) Query(ctx context.Context, req QueryRequest) (*model.QueryResult, error) {
	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	result := newQueryResult(prepared, req.IncludeSourcePdfs)

	if prepared.Retrieval.Results.IsEmpty() {
		log.Warnf("[QueryService] [%s] 没有检索到任何内容", prepared.RequestID)
		result.Answer = NoResultsMessage(prepared.Options.Language)
		result.HasContext = false
		result.ProcessingTimeSeconds = time.Since(prepared.Started).Seconds()
		return result, nil
	}

	answer, err := s.generator.GenerateAnswer(ctx, prepared.Retrieval.Query, prepared.Retrieval.Results, prepared.Options)
	if err != nil {
		return nil, err
	}
	applyAnswer(result, prepared, answer, s.generator.VisionActive(prepared.Options))
	log.Infof("[QueryService] [%s] 处理完成, 耗时 %.2fs", prepared.RequestID, result.ProcessingTimeSeconds)
	return result, nil
}

func newQueryResult(prepared *PreparedQuery, includeSourcePdfs bool) *model.QueryResult {
	retrieval := prepared.Retrieval
	result := &model.QueryResult{
		RequestID:        prepared.RequestID,
		Query:            retrieval.Query,
		RetrievalMethod:  retrieval.Method,
		GenerationMethod: string(prepared.Options.Mode),
		Language:         string(prepared.Options.Language),
		SourcesCount:     retrieval.Results.Counts(),
		TotalResults:     retrieval.TotalResults,
		Ranked:           retrieval.Ranked,
	}
	if includeSourcePdfs {
		result.SourcePdfs = UniqueSourcePdfs(retrieval.Results)
	}
	return result
}

// applyAnswer 把生成结果合并进 QueryResult。visionUsed 仅在本次启用 vision 且存在图片时为 true。
func applyAnswer(result *model.QueryResult, prepared *PreparedQuery, answer *model.Answer, visionActive bool) {
	result.Answer = answer.Answer
	result.HasContext = answer.HasContext
	result.Sources = answer.Sources
	result.Model = answer.Model
	result.VisionModel = answer.VisionModel
	result.Error = answer.Error
	result.VisionUsed = visionActive && len(prepared.Retrieval.Results.Images) > 0
	result.ProcessingTimeSeconds = time.Since(prepared.Started).Seconds()
}

func (s *queryService) Stats(ctx context.Context) model.CollectionStats {
	return s.store.Stats(ctx)
}
