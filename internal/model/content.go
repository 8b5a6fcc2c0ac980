// Package model 包含了应用的数据模型定义。
package model

import (
	"fmt"
	"strconv"
)

// ContentType 是检索条目的内容类别，条目创建后类别不可变。
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentTable ContentType = "table"
)

// ContentTypes 是集合的固定遍历顺序：text → image → table。
var ContentTypes = []ContentType{ContentText, ContentImage, ContentTable}

// Label 返回引用标记中使用的大写类别名，例如 TEXT。
func (t ContentType) Label() string {
	switch t {
	case ContentText:
		return "TEXT"
	case ContentImage:
		return "IMAGE"
	case ContentTable:
		return "TABLE"
	}
	return string(t)
}

// pageKey 返回各类别在元数据中存放页码的键。
func (t ContentType) pageKey() string {
	switch t {
	case ContentImage:
		return "img_page_number"
	case ContentTable:
		return "table_page_number"
	}
	return "chunk_page_number"
}

// Document 是向量集合中存储的一条记录。
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"-"`
}

// ImageDetail 是图片条目特有的字段。
type ImageDetail struct {
	URL         string `json:"imageUrl"`
	AIGenerated bool   `json:"aiGenerated"`
}

// TableDetail 是表格条目特有的字段。
type TableDetail struct {
	HasHTML bool `json:"hasHtml"`
}

// RetrievedItem 是一次检索返回的内容单元。公共字段放在外层，
// 类型特有字段只在对应类别下非空（Image / Table）。
type RetrievedItem struct {
	ID            string                 `json:"id,omitempty"`
	Type          ContentType            `json:"contentType"`
	Content       string                 `json:"content"`
	Score         *float64               `json:"score"`
	Page          *int                   `json:"page"`
	SourcePdfURL  string                 `json:"sourcePdfUrl,omitempty"`
	SourcePdfPath string                 `json:"sourcePdfPath,omitempty"`
	Filename      string                 `json:"filename,omitempty"`
	Bucket        string                 `json:"bucket,omitempty"`
	Image         *ImageDetail           `json:"image,omitempty"`
	Table         *TableDetail           `json:"table,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewRetrievedItem 从集合中的 Document 构造条目，score 为 nil 表示未评分。
func NewRetrievedItem(t ContentType, doc Document, score *float64) RetrievedItem {
	md := doc.Metadata
	item := RetrievedItem{
		ID:            doc.ID,
		Type:          t,
		Content:       doc.Content,
		Score:         score,
		Page:          intValue(md, t.pageKey()),
		SourcePdfURL:  firstString(md, "source_pdf_url", "pdf_url"),
		SourcePdfPath: firstString(md, "source_pdf_path", "pdf_storage_path"),
		Filename:      firstString(md, "pdf_original_filename"),
		Bucket:        firstString(md, "document_bucket"),
		Metadata:      md,
	}
	switch t {
	case ContentImage:
		item.Image = &ImageDetail{
			URL:         firstString(md, "image_url"),
			AIGenerated: boolValue(md, "ai_generated_description"),
		}
	case ContentTable:
		item.Table = &TableDetail{HasHTML: boolValue(md, "has_html")}
	}
	return item
}

// PageLabel 返回页码文本，缺失时为 N/A。
func (it RetrievedItem) PageLabel() string {
	if it.Page == nil {
		return "N/A"
	}
	return strconv.Itoa(*it.Page)
}

// ImageURL 返回图片的公开地址，非图片条目返回空串。
func (it RetrievedItem) ImageURL() string {
	if it.Image == nil {
		return ""
	}
	return it.Image.URL
}

// HasHTML 表示表格内容是否为 HTML 结构。
func (it RetrievedItem) HasHTML() bool {
	return it.Table != nil && it.Table.HasHTML
}

func firstString(md map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := md[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func boolValue(md map[string]interface{}, key string) bool {
	switch v := md[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// intValue 兼容 JSON 解码得到的 float64、驱动返回的整数与字符串形式的页码。
func intValue(md map[string]interface{}, key string) *int {
	var n int
	switch v := md[key].(type) {
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float32:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}
