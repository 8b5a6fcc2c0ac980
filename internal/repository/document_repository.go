// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"multimodal-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDocumentNotFound 表示没有对应 URL 的源文档记录。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 接口定义了已入库源 PDF 的持久化操作。
type DocumentRepository interface {
	Upsert(record *model.DocumentRecord) error
	FindByURL(pdfURL string) (*model.DocumentRecord, error)
	List(offset, limit int) ([]model.DocumentRecord, int64, error)
	DeleteAll() error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Upsert 以 pdf_url 为唯一键写入记录，重复入库时累加各类条目数。
func (r *documentRepository) Upsert(record *model.DocumentRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pdf_url"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"storage_path": record.StoragePath,
			"filename":     record.Filename,
			"bucket":       record.Bucket,
			"file_size":    record.FileSize,
			"text_count":   gorm.Expr("text_count + ?", record.TextCount),
			"image_count":  gorm.Expr("image_count + ?", record.ImageCount),
			"table_count":  gorm.Expr("table_count + ?", record.TableCount),
		}),
	}).Create(record).Error
}

// FindByURL 根据 PDF URL 查找记录。
func (r *documentRepository) FindByURL(pdfURL string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.Where("pdf_url = ?", pdfURL).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 按创建时间倒序分页返回记录及总数。
func (r *documentRepository) List(offset, limit int) ([]model.DocumentRecord, int64, error) {
	var (
		records []model.DocumentRecord
		total   int64
	)
	if err := r.db.Model(&model.DocumentRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, total, err
}

// DeleteAll 清空记录，随集合重置一起调用。
func (r *documentRepository) DeleteAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.DocumentRecord{}).Error
}
