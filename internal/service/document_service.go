package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/repository"
	"multimodal-rag-go/pkg/kafka"
	"multimodal-rag-go/pkg/log"
	"multimodal-rag-go/pkg/storage"
	"multimodal-rag-go/pkg/tasks"

	"github.com/google/uuid"
)

const downloadURLExpiry = time.Hour

// ErrAsyncIngestUnavailable 表示未配置 Kafka，无法异步入库。
var ErrAsyncIngestUnavailable = errors.New("async ingestion is not available")

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
	ExpiresIn   int    `json:"expiresIn"`
}

// DocumentPage 是分页的源文档列表。
type DocumentPage struct {
	Items []model.DocumentRecord `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
}

// IngestReceipt 是提交入库后的回执，同步入库时带有 Summary。
type IngestReceipt struct {
	TaskID  string              `json:"taskId"`
	Queued  bool                `json:"queued"`
	Summary *model.StoreSummary `json:"summary,omitempty"`
}

// DocumentService 接口定义了源文档管理相关的业务操作。
type DocumentService interface {
	ListDocuments(page, size int) (*DocumentPage, error)
	GenerateDownloadURL(ctx context.Context, pdfURL string) (*DownloadInfoDTO, error)
	Ingest(ctx context.Context, extraction model.ExtractionResult, async bool) (*IngestReceipt, error)
	ResetCollections(ctx context.Context) error
}

type documentService struct {
	docRepo       repository.DocumentRepository
	ingestService IngestService
	minioCfg      config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, ingestService IngestService, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		docRepo:       docRepo,
		ingestService: ingestService,
		minioCfg:      minioCfg,
	}
}

// ListDocuments 按入库时间倒序分页返回已登记的源 PDF。
func (s *documentService) ListDocuments(page, size int) (*DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	items, total, err := s.docRepo.List((page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, Total: total, Page: page, Size: size}, nil
}

// GenerateDownloadURL 为源 PDF 生成临时下载链接。对象位置优先从 URL 解析，其次取登记表中的 bucket 与存储路径。
func (s *documentService) GenerateDownloadURL(ctx context.Context, pdfURL string) (*DownloadInfoDTO, error) {
	if storage.MinioClient == nil {
		return nil, errors.New("object storage is not configured")
	}

	record, err := s.docRepo.FindByURL(pdfURL)
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, err
	}

	bucket, object, ok := storage.ObjectFromURL(s.minioCfg, pdfURL)
	if !ok {
		if record == nil || record.StoragePath == "" {
			return nil, repository.ErrDocumentNotFound
		}
		bucket, object = record.Bucket, record.StoragePath
		if bucket == "" {
			bucket = s.minioCfg.DocumentBucket
		}
	}

	presignedURL, err := storage.GetPresignedURL(ctx, bucket, object, downloadURLExpiry)
	if err != nil {
		return nil, err
	}

	info := &DownloadInfoDTO{
		FileName:    object,
		DownloadURL: presignedURL,
		ExpiresIn:   int(downloadURLExpiry.Seconds()),
	}
	if record != nil {
		if record.Filename != "" {
			info.FileName = record.Filename
		}
		info.FileSize = record.FileSize
	}
	return info, nil
}

// Ingest 同步写入向量集合，或在 async 时投递到 Kafka。
// 异步模式下解析结果先写入 MinIO，消息只携带对象路径；未配置 MinIO 时内联在消息中。
func (s *documentService) Ingest(ctx context.Context, extraction model.ExtractionResult, async bool) (*IngestReceipt, error) {
	taskID := uuid.NewString()
	if !async {
		summary, err := s.ingestService.Store(ctx, extraction)
		if err != nil {
			return nil, err
		}
		return &IngestReceipt{TaskID: taskID, Summary: summary}, nil
	}

	if !kafka.ProducerReady() {
		return nil, ErrAsyncIngestUnavailable
	}
	task := tasks.IngestionTask{TaskID: taskID, Source: extraction.Metadata.Source}
	if storage.MinioClient != nil && s.minioCfg.DocumentBucket != "" {
		data, err := json.Marshal(extraction)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extraction: %w", err)
		}
		task.Bucket = s.minioCfg.DocumentBucket
		task.ObjectKey = fmt.Sprintf("extractions/%s.json", taskID)
		if err := storage.PutObjectBytes(ctx, task.Bucket, task.ObjectKey, data, "application/json"); err != nil {
			return nil, err
		}
	} else {
		task.Extraction = &extraction
	}

	if err := kafka.ProduceIngestionTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue ingestion task: %w", err)
	}
	log.Infof("[DocumentService] 入库任务已投递, TaskID: %s, Source: %s", taskID, task.Source)
	return &IngestReceipt{TaskID: taskID, Queued: true}, nil
}

func (s *documentService) ResetCollections(ctx context.Context) error {
	return s.ingestService.Reset(ctx)
}
