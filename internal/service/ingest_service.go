package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/repository"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/log"
)

// IngestService 把版面解析的输出写入三个向量集合，并登记源 PDF。
type IngestService interface {
	Store(ctx context.Context, extraction model.ExtractionResult) (*model.StoreSummary, error)
	Reset(ctx context.Context) error
}

type ingestService struct {
	store   vectorstore.Store
	docRepo repository.DocumentRepository
}

// NewIngestService 创建一个新的 IngestService 实例，docRepo 可以为 nil。
func NewIngestService(store vectorstore.Store, docRepo repository.DocumentRepository) IngestService {
	return &ingestService{store: store, docRepo: docRepo}
}

// sourceMetadata 是每条入库记录共享的来源元数据。
func sourceMetadata(extraction model.ExtractionResult) map[string]interface{} {
	meta := extraction.Metadata
	source := meta.Source
	if source == "" {
		source = "unknown"
	}
	md := map[string]interface{}{
		"source_file":     source,
		"total_elements":  meta.TotalElements,
		"image_bucket":    meta.ImageBucket,
		"document_bucket": meta.DocumentBucket,
	}
	if extraction.PdfURL != "" {
		md["pdf_url"] = extraction.PdfURL
		md["pdf_storage_path"] = extraction.PdfStoragePath
	}
	if meta.SourcePdf != nil {
		md["pdf_original_filename"] = meta.SourcePdf.OriginalFilename
		md["pdf_file_size"] = meta.SourcePdf.FileSize
	}
	return md
}

// mergePrefixed 把元素自带的元数据加上前缀合并，标量原样保留，列表与对象转为字符串。
func mergePrefixed(dst map[string]interface{}, prefix string, src map[string]interface{}) {
	for k, v := range src {
		switch val := v.(type) {
		case nil:
			continue
		case string, bool, int, int32, int64, float32, float64:
			dst[prefix+k] = val
		default:
			dst[prefix+k] = fmt.Sprint(val)
		}
	}
}

func baseMetadata(extraction model.ExtractionResult, contentType string) map[string]interface{} {
	md := sourceMetadata(extraction)
	md["type"] = contentType
	return md
}

func setSourcePdf(md map[string]interface{}, url, path string) {
	if url != "" {
		md["source_pdf_url"] = url
	}
	if path != "" {
		md["source_pdf_path"] = path
	}
}

func textDocuments(extraction model.ExtractionResult) []model.Document {
	chunks := extraction.TextChunksSemantic
	if len(chunks) == 0 {
		chunks = extraction.TextChunks
	}
	docs := make([]model.Document, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		md := baseMetadata(extraction, "text")
		md["chunk_id"] = c.ID
		setSourcePdf(md, c.SourcePdfURL, c.SourcePdfPath)
		mergePrefixed(md, "chunk_", c.Metadata)
		docs = append(docs, model.Document{Content: c.Content, Metadata: md})
	}
	return docs
}

func imageDocuments(extraction model.ExtractionResult) []model.Document {
	docs := make([]model.Document, 0, len(extraction.Images))
	for _, img := range extraction.Images {
		content := img.Content
		if strings.TrimSpace(content) == "" {
			page, ok := img.Metadata["page_number"]
			if !ok || page == nil {
				page = "unknown"
			}
			content = fmt.Sprintf("Image from page %v", page)
		}
		md := baseMetadata(extraction, "image")
		md["image_id"] = img.ID
		md["image_url"] = img.URL
		md["storage_path"] = img.StoragePath
		md["ai_generated_description"] = img.AIGeneratedDescription
		setSourcePdf(md, img.SourcePdfURL, img.SourcePdfPath)
		mergePrefixed(md, "img_", img.Metadata)
		docs = append(docs, model.Document{Content: content, Metadata: md})
	}
	return docs
}

func tableDocuments(extraction model.ExtractionResult) []model.Document {
	docs := make([]model.Document, 0, len(extraction.Tables))
	for _, t := range extraction.Tables {
		content := t.TableHTML
		if content == "" {
			content = t.TableText
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		md := baseMetadata(extraction, "table")
		md["table_id"] = t.ID
		md["has_html"] = t.TableHTML != ""
		setSourcePdf(md, t.SourcePdfURL, t.SourcePdfPath)
		mergePrefixed(md, "table_", t.Metadata)
		docs = append(docs, model.Document{Content: content, Metadata: md})
	}
	return docs
}

// Store 依次写入 text、image、table 三个集合，任一集合写入失败即返回错误。
func (s *ingestService) Store(ctx context.Context, extraction model.ExtractionResult) (*model.StoreSummary, error) {
	start := time.Now()
	log.Infof("[IngestService] 开始入库, source: %s, text: %d (semantic: %d), images: %d, tables: %d",
		extraction.Metadata.Source, len(extraction.TextChunks), len(extraction.TextChunksSemantic), len(extraction.Images), len(extraction.Tables))

	summary := &model.StoreSummary{}
	var err error
	if summary.TextIDs, err = s.store.AddDocuments(ctx, model.ContentText, textDocuments(extraction)); err != nil {
		return nil, fmt.Errorf("failed to store text chunks: %w", err)
	}
	if summary.ImageIDs, err = s.store.AddDocuments(ctx, model.ContentImage, imageDocuments(extraction)); err != nil {
		return nil, fmt.Errorf("failed to store images: %w", err)
	}
	if summary.TableIDs, err = s.store.AddDocuments(ctx, model.ContentTable, tableDocuments(extraction)); err != nil {
		return nil, fmt.Errorf("failed to store tables: %w", err)
	}

	if extraction.PdfURL != "" {
		pdf := &model.SourcePdf{
			URL:         extraction.PdfURL,
			StoragePath: extraction.PdfStoragePath,
			Bucket:      extraction.Metadata.DocumentBucket,
		}
		var fileSize int64
		if extraction.Metadata.SourcePdf != nil {
			pdf.Filename = extraction.Metadata.SourcePdf.OriginalFilename
			fileSize = extraction.Metadata.SourcePdf.FileSize
		}
		summary.PdfInfo = pdf
		if s.docRepo != nil {
			record := &model.DocumentRecord{
				PdfURL:      pdf.URL,
				StoragePath: pdf.StoragePath,
				Filename:    pdf.Filename,
				Bucket:      pdf.Bucket,
				FileSize:    fileSize,
				TextCount:   len(summary.TextIDs),
				ImageCount:  len(summary.ImageIDs),
				TableCount:  len(summary.TableIDs),
			}
			if err := s.docRepo.Upsert(record); err != nil {
				log.Errorf("[IngestService] 登记源 PDF 失败, url: %s, error: %v", pdf.URL, err)
			}
		}
	}

	summary.Stats = s.store.Stats(ctx)
	summary.Duration = time.Since(start)
	log.Infof("[IngestService] 入库完成, text: %d, images: %d, tables: %d, 耗时 %s",
		len(summary.TextIDs), len(summary.ImageIDs), len(summary.TableIDs), summary.Duration)
	return summary, nil
}

// Reset 清空三个集合及源 PDF 登记表。
func (s *ingestService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if s.docRepo != nil {
		if err := s.docRepo.DeleteAll(); err != nil {
			return fmt.Errorf("failed to clear document registry: %w", err)
		}
	}
	log.Info("[IngestService] 所有集合已重置")
	return nil
}
