package model

// RetrievalResult 按类别分组的检索结果。
type RetrievalResult struct {
	Text   []RetrievedItem `json:"text"`
	Images []RetrievedItem `json:"images"`
	Tables []RetrievedItem `json:"tables"`
}

// NewRetrievalResult 返回三组均为空切片（而非 nil）的结果，保证 JSON 输出为 []。
func NewRetrievalResult() RetrievalResult {
	return RetrievalResult{
		Text:   []RetrievedItem{},
		Images: []RetrievedItem{},
		Tables: []RetrievedItem{},
	}
}

// Group 返回指定类别的分组。
func (r RetrievalResult) Group(t ContentType) []RetrievedItem {
	switch t {
	case ContentImage:
		return r.Images
	case ContentTable:
		return r.Tables
	}
	return r.Text
}

// Append 把条目追加到其类别对应的分组。
func (r *RetrievalResult) Append(item RetrievedItem) {
	switch item.Type {
	case ContentImage:
		r.Images = append(r.Images, item)
	case ContentTable:
		r.Tables = append(r.Tables, item)
	default:
		r.Text = append(r.Text, item)
	}
}

// Total 三组条目数之和。
func (r RetrievalResult) Total() int {
	return len(r.Text) + len(r.Images) + len(r.Tables)
}

// IsEmpty 三组都为空时返回 true。
func (r RetrievalResult) IsEmpty() bool {
	return r.Total() == 0
}

// Counts 返回每类条目的数量。
func (r RetrievalResult) Counts() SourcesCount {
	return SourcesCount{Text: len(r.Text), Images: len(r.Images), Tables: len(r.Tables)}
}

// RankedItem 是 hybrid 策略合并后全局排序序列中的一项。
type RankedItem struct {
	Item          RetrievedItem `json:"item"`
	WeightedScore float64       `json:"weightedScore"`
	Type          ContentType   `json:"type"`
}

// RetrievalResponse 是检索层向上提供的结果及元信息。
type RetrievalResponse struct {
	Query        string          `json:"query"`
	Method       string          `json:"method"`
	Results      RetrievalResult `json:"results"`
	Ranked       []RankedItem    `json:"rankedResults,omitempty"`
	TotalResults int             `json:"totalResults"`
}

// SourcePdf 是从检索结果中去重得到的源文档引用，以 URL 为键。
type SourcePdf struct {
	URL         string `json:"url"`
	StoragePath string `json:"storagePath"`
	Filename    string `json:"filename"`
	Bucket      string `json:"bucket"`
}

// CollectionStats 是各集合的文档数量。
type CollectionStats struct {
	Text   int `json:"text"`
	Images int `json:"images"`
	Tables int `json:"tables"`
	Total  int `json:"total"`
}
