// Package pipeline 定义了解析结果入库的核心流程。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/pkg/log"
	"multimodal-rag-go/pkg/storage"
	"multimodal-rag-go/pkg/tasks"
)

const maxExtractionBytes = 64 << 20

// ErrEmptyTask 表示任务既没有内联解析结果，也没有对象存储路径。
var ErrEmptyTask = errors.New("ingestion task carries no extraction")

// Processor 封装了入库任务的所有依赖和逻辑。
type Processor struct {
	ingestService service.IngestService
	minioCfg      config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(ingestService service.IngestService, minioCfg config.MinIOConfig) *Processor {
	return &Processor{
		ingestService: ingestService,
		minioCfg:      minioCfg,
	}
}

// Process 是入库任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] 开始处理入库任务, TaskID: %s, Source: %s", task.TaskID, task.Source)

	// 1. 获取解析结果
	extraction, err := p.loadExtraction(ctx, task)
	if err != nil {
		log.Errorf("[Processor] 获取解析结果失败, TaskID: %s, Error: %v", task.TaskID, err)
		return err
	}
	if extraction.Metadata.Source == "" {
		extraction.Metadata.Source = task.Source
	}

	// 2. 写入向量集合
	summary, err := p.ingestService.Store(ctx, *extraction)
	if err != nil {
		log.Errorf("[Processor] 入库失败, TaskID: %s, Error: %v", task.TaskID, err)
		return fmt.Errorf("入库失败: %w", err)
	}

	log.Infof("[Processor] 入库任务处理完成, TaskID: %s, text: %d, images: %d, tables: %d",
		task.TaskID, len(summary.TextIDs), len(summary.ImageIDs), len(summary.TableIDs))
	return nil
}

func (p *Processor) loadExtraction(ctx context.Context, task tasks.IngestionTask) (*model.ExtractionResult, error) {
	if task.Extraction != nil {
		return task.Extraction, nil
	}
	if task.ObjectKey == "" {
		return nil, ErrEmptyTask
	}
	if storage.MinioClient == nil {
		return nil, errors.New("minio client is not initialized")
	}

	bucket := task.Bucket
	if bucket == "" {
		bucket = p.minioCfg.DocumentBucket
	}
	log.Infof("[Processor] 从MinIO下载解析结果, Bucket: %s, Object: %s", bucket, task.ObjectKey)
	data, err := storage.GetObjectBytes(ctx, bucket, task.ObjectKey, maxExtractionBytes)
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载解析结果失败: %w", err)
	}

	var extraction model.ExtractionResult
	if err := json.Unmarshal(data, &extraction); err != nil {
		return nil, fmt.Errorf("解析结果不是合法的 JSON: %w", err)
	}
	return &extraction, nil
}
