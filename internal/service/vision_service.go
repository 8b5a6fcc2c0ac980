package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/repository"
	"multimodal-rag-go/pkg/llm"
	"multimodal-rag-go/pkg/log"
	"multimodal-rag-go/pkg/storage"
)

const maxImageBytes = 20 << 20

// VisionStatus 标识一次查询时图像分析的结果类别。
type VisionStatus string

const (
	VisionOK          VisionStatus = "ok"
	VisionCached      VisionStatus = "cached"
	VisionFetchFailed VisionStatus = "fetch_failed"
	VisionModelFailed VisionStatus = "model_failed"
	VisionEmpty       VisionStatus = "empty"
)

// VisionOutcome 保留"没有可用分析"与"拉取失败后回退"的区别，便于日志排查。
type VisionOutcome struct {
	Status   VisionStatus
	Analysis string
	Err      error
}

// Succeeded 表示是否得到了可直接使用的实时分析。
func (o VisionOutcome) Succeeded() bool {
	return (o.Status == VisionOK || o.Status == VisionCached) && o.Analysis != ""
}

// AssetFetcher 根据公开 URL 获取图片字节与 MIME 类型。
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// VisionService 对单张图片做结合问题的实时分析。
type VisionService interface {
	Analyze(ctx context.Context, imageURL, query string, lang Language) VisionOutcome
	Model() string
}

type visionService struct {
	client       llm.Client
	fetcher      AssetFetcher
	cache        repository.VisionCache
	fetchTimeout time.Duration
}

// NewVisionService 创建 VisionService，cache 可以为 nil。
func NewVisionService(client llm.Client, fetcher AssetFetcher, cache repository.VisionCache, fetchTimeout time.Duration) VisionService {
	return &visionService{
		client:       client,
		fetcher:      fetcher,
		cache:        cache,
		fetchTimeout: fetchTimeout,
	}
}

func (s *visionService) Model() string {
	return s.client.Model()
}

func (s *visionService) Analyze(ctx context.Context, imageURL, query string, lang Language) VisionOutcome {
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, imageURL, query, string(lang)); err != nil {
			log.Warnf("[VisionService] 读取图像分析缓存失败: %v", err)
		} else if ok {
			log.Debugf("[VisionService] 命中图像分析缓存: %s", truncateRunes(imageURL, 80))
			return VisionOutcome{Status: VisionCached, Analysis: cached}
		}
	}

	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	data, mimeType, err := s.fetcher.Fetch(fetchCtx, imageURL)
	if err != nil {
		return VisionOutcome{Status: VisionFetchFailed, Err: err}
	}
	log.Debugf("[VisionService] 图片获取成功 (%d bytes, %s)", len(data), mimeType)

	messages := []llm.Message{{
		Role: "user",
		Parts: []llm.ContentPart{
			llm.TextPart(buildVisionPrompt(lang, query)),
			llm.ImagePart(mimeType, base64.StdEncoding.EncodeToString(data)),
		},
	}}
	analysis, err := s.client.Chat(ctx, messages, nil)
	if err != nil {
		return VisionOutcome{Status: VisionModelFailed, Err: err}
	}
	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		return VisionOutcome{Status: VisionEmpty}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, imageURL, query, string(lang), analysis); err != nil {
			log.Warnf("[VisionService] 写入图像分析缓存失败: %v", err)
		}
	}
	log.Infof("[VisionService] 图像分析完成 (%d chars)", len(analysis))
	return VisionOutcome{Status: VisionOK, Analysis: analysis}
}

type assetFetcher struct {
	httpClient *http.Client
	minioCfg   config.MinIOConfig
}

// NewAssetFetcher 创建 AssetFetcher：URL 指向配置的 MinIO 时直接读取对象，否则走 HTTP GET。
func NewAssetFetcher(minioCfg config.MinIOConfig, timeout time.Duration) AssetFetcher {
	return &assetFetcher{
		httpClient: &http.Client{Timeout: timeout},
		minioCfg:   minioCfg,
	}
}

func (f *assetFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if storage.MinioClient != nil {
		if bucket, object, ok := storage.ObjectFromURL(f.minioCfg, url); ok {
			data, err := storage.GetObjectBytes(ctx, bucket, object, maxImageBytes)
			if err != nil {
				return nil, "", err
			}
			return data, imageMimeType(data), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image body is empty")
	}
	return data, imageMimeType(data), nil
}

// imageMimeType 嗅探图片类型，无法识别时按 JPEG 处理。
func imageMimeType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
