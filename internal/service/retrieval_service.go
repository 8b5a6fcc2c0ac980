// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/log"
)

// ErrUnknownStrategy 表示请求了未定义的检索策略。
var ErrUnknownStrategy = errors.New("unknown retrieval strategy")

// ErrInvalidParams 表示检索参数超出允许范围。
var ErrInvalidParams = errors.New("invalid retrieval parameters")

const (
	StrategyAll       = "all"
	StrategyHybrid    = "hybrid"
	StrategyMMR       = "mmr"
	StrategyTextOnly  = "text_only"
	StrategyImageOnly = "image_only"
	StrategyTableOnly = "table_only"

	defaultK           = 5
	defaultTextWeight  = 0.5
	defaultImageWeight = 0.25
	defaultTableWeight = 0.25
	defaultLambdaMult  = 0.5

	maxK      = 20
	maxKMedia = 10
	maxFetchK = 100
)

// Strategies 列出所有受支持的检索策略。
var Strategies = []string{StrategyAll, StrategyHybrid, StrategyMMR, StrategyTextOnly, StrategyImageOnly, StrategyTableOnly}

// RetrievalParams 是检索策略的可选参数，nil 表示使用默认值。
type RetrievalParams struct {
	K int

	// all
	KText   *int
	KImages *int
	KTables *int
	Filter  map[string]interface{}

	// hybrid
	TextWeight  *float64
	ImageWeight *float64
	TableWeight *float64

	// mmr
	FetchK        *int
	LambdaMult    *float64
	IncludeText   *bool
	IncludeImages *bool
	IncludeTables *bool
}

// RetrievalService 在三个集合上执行多模态检索。
type RetrievalService interface {
	Retrieve(ctx context.Context, query, strategy string, params RetrievalParams) (*model.RetrievalResponse, error)
}

type retrievalService struct {
	store vectorstore.Store
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(store vectorstore.Store) RetrievalService {
	return &retrievalService{store: store}
}

// ValidateStrategy 检查策略名是否受支持。
func ValidateStrategy(strategy string) error {
	for _, s := range Strategies {
		if s == strategy {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

// ValidateParams 检查检索参数范围：k 与 k_text 为 1..20，k_images 与 k_tables 为 1..10，
// fetch_k 为 1..100，权重与 lambda_mult 为 [0,1]。K 为 0 表示使用默认值。
func ValidateParams(p RetrievalParams) error {
	if p.K < 0 || p.K > maxK {
		return fmt.Errorf("%w: k must be between 1 and %d, got %d", ErrInvalidParams, maxK, p.K)
	}
	ints := []struct {
		name string
		v    *int
		max  int
	}{
		{"k_text", p.KText, maxK},
		{"k_images", p.KImages, maxKMedia},
		{"k_tables", p.KTables, maxKMedia},
		{"fetch_k", p.FetchK, maxFetchK},
	}
	for _, f := range ints {
		if f.v != nil && (*f.v < 1 || *f.v > f.max) {
			return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrInvalidParams, f.name, f.max, *f.v)
		}
	}
	fractions := []struct {
		name string
		v    *float64
	}{
		{"text_weight", p.TextWeight},
		{"image_weight", p.ImageWeight},
		{"table_weight", p.TableWeight},
		{"lambda_mult", p.LambdaMult},
	}
	for _, f := range fractions {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %g", ErrInvalidParams, f.name, *f.v)
		}
	}
	return nil
}

// Retrieve 按策略检索。未知策略立即返回 ErrUnknownStrategy；
// 任一集合检索失败只记录日志并把该类别视为空结果。
func (s *retrievalService) Retrieve(ctx context.Context, query, strategy string, params RetrievalParams) (*model.RetrievalResponse, error) {
	if err := ValidateStrategy(strategy); err != nil {
		return nil, err
	}
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	k := params.K
	if k <= 0 {
		k = defaultK
	}
	log.Infof("[Retriever] 开始检索, method: %s, k: %d, query: '%s'", strategy, k, query)

	resp := &model.RetrievalResponse{
		Query:   query,
		Method:  strategy,
		Results: model.NewRetrievalResult(),
	}

	vector, err := s.store.Embed(ctx, query)
	if err != nil {
		log.Errorf("[Retriever] 查询向量化失败, 所有类别按空结果处理: %v", err)
		return resp, nil
	}

	switch strategy {
	case StrategyAll:
		s.retrieveAll(ctx, vector, k, params, resp)
	case StrategyHybrid:
		s.retrieveHybrid(ctx, vector, k, params, resp)
	case StrategyMMR:
		s.retrieveMMR(ctx, vector, k, params, resp)
	case StrategyTextOnly:
		resp.Results.Text = s.search(ctx, model.ContentText, vector, k, nil)
	case StrategyImageOnly:
		resp.Results.Images = s.search(ctx, model.ContentImage, vector, k, nil)
	case StrategyTableOnly:
		resp.Results.Tables = s.search(ctx, model.ContentTable, vector, k, nil)
	}

	if strategy == StrategyHybrid {
		resp.TotalResults = len(resp.Ranked)
	} else {
		resp.TotalResults = resp.Results.Total()
	}
	counts := resp.Results.Counts()
	log.Infof("[Retriever] 检索完成, method: %s, total: %d (text: %d, images: %d, tables: %d)",
		strategy, resp.TotalResults, counts.Text, counts.Images, counts.Tables)
	return resp, nil
}

// search 执行单集合相似度检索，失败时返回空切片。
func (s *retrievalService) search(ctx context.Context, t model.ContentType, vector []float32, k int, filter map[string]interface{}) []model.RetrievedItem {
	scored, err := s.store.SearchByVector(ctx, t, vector, k, filter)
	if err != nil {
		log.Errorf("[Retriever] 检索 %s 集合失败, 按空结果处理: %v", t, err)
		return []model.RetrievedItem{}
	}
	items := make([]model.RetrievedItem, 0, len(scored))
	for _, sd := range scored {
		distance := sd.Distance
		items = append(items, model.NewRetrievedItem(t, sd.Document, &distance))
	}
	return items
}

func (s *retrievalService) retrieveAll(ctx context.Context, vector []float32, k int, p RetrievalParams, resp *model.RetrievalResponse) {
	half := k / 2
	if half < 2 {
		half = 2
	}
	resp.Results.Text = s.search(ctx, model.ContentText, vector, intOr(p.KText, k), p.Filter)
	resp.Results.Images = s.search(ctx, model.ContentImage, vector, intOr(p.KImages, half), p.Filter)
	resp.Results.Tables = s.search(ctx, model.ContentTable, vector, intOr(p.KTables, half), p.Filter)
}

// retrieveHybrid 以同一个 k 检索三个集合，原始距离乘以类别权重后合并，
// 按加权分数升序稳定排序并截取前 k 个。相同分数保持 text → image → table 的拼接顺序。
func (s *retrievalService) retrieveHybrid(ctx context.Context, vector []float32, k int, p RetrievalParams, resp *model.RetrievalResponse) {
	weights := map[model.ContentType]float64{
		model.ContentText:  floatOr(p.TextWeight, defaultTextWeight),
		model.ContentImage: floatOr(p.ImageWeight, defaultImageWeight),
		model.ContentTable: floatOr(p.TableWeight, defaultTableWeight),
	}
	log.Debugf("[Retriever] hybrid 权重: text=%.2f, image=%.2f, table=%.2f",
		weights[model.ContentText], weights[model.ContentImage], weights[model.ContentTable])

	var ranked []model.RankedItem
	for _, t := range model.ContentTypes {
		for _, item := range s.search(ctx, t, vector, k, nil) {
			ranked = append(ranked, model.RankedItem{
				Item:          item,
				WeightedScore: *item.Score * weights[t],
				Type:          t,
			})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore < ranked[j].WeightedScore
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	if ranked == nil {
		ranked = []model.RankedItem{}
	}

	for _, r := range ranked {
		resp.Results.Append(r.Item)
	}
	resp.Ranked = ranked
}

func (s *retrievalService) retrieveMMR(ctx context.Context, vector []float32, k int, p RetrievalParams, resp *model.RetrievalResponse) {
	fetchK := intOr(p.FetchK, k*3)
	lambda := floatOr(p.LambdaMult, defaultLambdaMult)
	log.Debugf("[Retriever] mmr 参数: k=%d, fetch_k=%d, lambda=%.2f", k, fetchK, lambda)

	mmr := func(t model.ContentType) []model.RetrievedItem {
		docs, err := s.store.MaxMarginalRelevanceByVector(ctx, t, vector, k, fetchK, lambda)
		if err != nil {
			log.Errorf("[Retriever] MMR 检索 %s 集合失败, 按空结果处理: %v", t, err)
			return []model.RetrievedItem{}
		}
		items := make([]model.RetrievedItem, 0, len(docs))
		for _, d := range docs {
			items = append(items, model.NewRetrievedItem(t, d, nil))
		}
		return items
	}

	if boolOr(p.IncludeText, true) {
		resp.Results.Text = mmr(model.ContentText)
	}
	if boolOr(p.IncludeImages, true) {
		resp.Results.Images = mmr(model.ContentImage)
	}
	if boolOr(p.IncludeTables, true) {
		resp.Results.Tables = mmr(model.ContentTable)
	}
}

// UniqueSourcePdfs 按 text → images → tables 的顺序扫描全部条目，
// 以 sourcePdfUrl 去重并保留首次出现的顺序。
func UniqueSourcePdfs(result model.RetrievalResult) []model.SourcePdf {
	seen := make(map[string]struct{})
	pdfs := make([]model.SourcePdf, 0)
	for _, t := range model.ContentTypes {
		for _, item := range result.Group(t) {
			if item.SourcePdfURL == "" {
				continue
			}
			if _, ok := seen[item.SourcePdfURL]; ok {
				continue
			}
			seen[item.SourcePdfURL] = struct{}{}
			pdfs = append(pdfs, model.SourcePdf{
				URL:         item.SourcePdfURL,
				StoragePath: item.SourcePdfPath,
				Filename:    item.Filename,
				Bucket:      item.Bucket,
			})
		}
	}
	log.Debugf("[Retriever] 找到 %d 个不同的源 PDF", len(pdfs))
	return pdfs
}

// FormatResultWithSources 把检索结果渲染为便于阅读的纯文本，用于命令行与调试输出。
func FormatResultWithSources(resp *model.RetrievalResponse) string {
	rule := strings.Repeat("=", 60)
	out := []string{
		"\n" + rule,
		"QUERY: " + resp.Query,
		"METHOD: " + resp.Method,
		fmt.Sprintf("TOTAL RESULTS: %d", resp.TotalResults),
		rule + "\n",
	}

	source := func(item model.RetrievedItem) {
		if item.SourcePdfURL != "" {
			out = append(out, fmt.Sprintf("   Source: %s...", truncateRunes(item.SourcePdfURL, 80)))
		}
	}

	r := resp.Results
	if len(r.Text) > 0 {
		out = append(out, fmt.Sprintf("TEXT CHUNKS (%d):", len(r.Text)))
		for i, item := range r.Text {
			out = append(out, fmt.Sprintf("\n%d. %s", i+1, truncateRunes(item.Content, 100)))
			source(item)
			if item.Page != nil {
				out = append(out, "   Page: "+item.PageLabel())
			}
		}
	}
	if len(r.Images) > 0 {
		out = append(out, fmt.Sprintf("\nIMAGES (%d):", len(r.Images)))
		for i, item := range r.Images {
			out = append(out, fmt.Sprintf("\n%d. %s...", i+1, truncateRunes(item.Content, 100)))
			if url := item.ImageURL(); url != "" {
				out = append(out, fmt.Sprintf("   Image URL: %s...", truncateRunes(url, 80)))
			}
			source(item)
			if item.Image != nil && item.Image.AIGenerated {
				out = append(out, "   [AI-generated description]")
			}
		}
	}
	if len(r.Tables) > 0 {
		out = append(out, fmt.Sprintf("\nTABLES (%d):", len(r.Tables)))
		for i, item := range r.Tables {
			out = append(out, fmt.Sprintf("\n%d. %s", i+1, truncateRunes(item.Content, 100)))
			source(item)
			if item.Page != nil {
				out = append(out, "   Page: "+item.PageLabel())
			}
		}
	}
	return strings.Join(out, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
