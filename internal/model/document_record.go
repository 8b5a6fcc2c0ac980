package model

import "time"

// DocumentRecord 对应于数据库中的 source_documents 表，每个已入库的源 PDF 一行。
type DocumentRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PdfURL      string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"pdfUrl"`
	StoragePath string    `gorm:"type:varchar(512)" json:"storagePath"`
	Filename    string    `gorm:"type:varchar(255)" json:"filename"`
	Bucket      string    `gorm:"type:varchar(100)" json:"bucket"`
	FileSize    int64     `json:"fileSize"`
	TextCount   int       `gorm:"not null;default:0" json:"textCount"`
	ImageCount  int       `gorm:"not null;default:0" json:"imageCount"`
	TableCount  int       `gorm:"not null;default:0" json:"tableCount"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "source_documents"
}
