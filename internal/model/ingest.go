package model

import "time"

// ExtractionResult 是外部版面解析服务对一份 PDF 的解析输出，
// 经 Kafka 投递后由入库流程写入三个向量集合。
type ExtractionResult struct {
	PdfURL             string             `json:"pdf_url,omitempty"`
	PdfStoragePath     string             `json:"pdf_storage_path,omitempty"`
	TextChunks         []TextChunk        `json:"text_chunks,omitempty"`
	TextChunksSemantic []TextChunk        `json:"text_chunks_semantic,omitempty"`
	Images             []ExtractedImage   `json:"images,omitempty"`
	Tables             []ExtractedTable   `json:"tables,omitempty"`
	Metadata           ExtractionMetadata `json:"metadata"`
}

// ExtractionMetadata 描述解析来源。
type ExtractionMetadata struct {
	Source         string     `json:"source,omitempty"`
	TotalElements  int        `json:"total_elements,omitempty"`
	ImageBucket    string     `json:"image_bucket,omitempty"`
	DocumentBucket string     `json:"document_bucket,omitempty"`
	SourcePdf      *PdfDetail `json:"source_pdf,omitempty"`
}

// PdfDetail 是上传的源 PDF 信息。
type PdfDetail struct {
	OriginalFilename string `json:"original_filename,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
}

// TextChunk 是一段文本分块。
type TextChunk struct {
	ID            string                 `json:"id,omitempty"`
	Content       string                 `json:"content"`
	SourcePdfURL  string                 `json:"source_pdf_url,omitempty"`
	SourcePdfPath string                 `json:"source_pdf_path,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ExtractedImage 是已上传到对象存储的图片及其入库时生成的描述。
type ExtractedImage struct {
	ID                     string                 `json:"id,omitempty"`
	Content                string                 `json:"content,omitempty"`
	URL                    string                 `json:"url,omitempty"`
	StoragePath            string                 `json:"storage_path,omitempty"`
	AIGeneratedDescription bool                   `json:"ai_generated_description,omitempty"`
	SourcePdfURL           string                 `json:"source_pdf_url,omitempty"`
	SourcePdfPath          string                 `json:"source_pdf_path,omitempty"`
	Metadata               map[string]interface{} `json:"metadata,omitempty"`
}

// ExtractedTable 是一张表格，HTML 与纯文本二者至少有其一。
type ExtractedTable struct {
	ID            string                 `json:"id,omitempty"`
	TableHTML     string                 `json:"table_html,omitempty"`
	TableText     string                 `json:"table_text,omitempty"`
	SourcePdfURL  string                 `json:"source_pdf_url,omitempty"`
	SourcePdfPath string                 `json:"source_pdf_path,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StoreSummary 是一次入库的结果。
type StoreSummary struct {
	TextIDs  []string        `json:"textIds"`
	ImageIDs []string        `json:"imageIds"`
	TableIDs []string        `json:"tableIds"`
	PdfInfo  *SourcePdf      `json:"pdfInfo,omitempty"`
	Stats    CollectionStats `json:"stats"`
	Duration time.Duration   `json:"duration"`
}
