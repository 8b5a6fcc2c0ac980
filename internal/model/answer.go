package model

// SourcesCount 是参与回答的各类条目数量。
type SourcesCount struct {
	Text   int `json:"text"`
	Images int `json:"images"`
	Tables int `json:"tables"`
}

// Source 是回答中可引用的一条来源，ID 形如 TEXT-1。
type Source struct {
	Type               ContentType            `json:"type"`
	ID                 string                 `json:"id"`
	ContentPreview     string                 `json:"contentPreview,omitempty"`
	Description        string                 `json:"description,omitempty"`
	URL                string                 `json:"url,omitempty"`
	Page               string                 `json:"page"`
	HasHTML            *bool                  `json:"hasHtml,omitempty"`
	AnalyzedWithVision *bool                  `json:"analyzedWithVision,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Answer 是生成层的输出。
type Answer struct {
	Answer       string       `json:"answer"`
	HasContext   bool         `json:"hasContext"`
	Sources      []Source     `json:"sources,omitempty"`
	SourcesCount SourcesCount `json:"sourcesCount"`
	Model        string       `json:"model,omitempty"`
	VisionModel  string       `json:"visionModel,omitempty"`
	Language     string       `json:"language,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// QueryResult 是一次完整问答（检索 + 生成）的响应。
type QueryResult struct {
	RequestID             string       `json:"requestId"`
	Query                 string       `json:"query"`
	Answer                string       `json:"answer"`
	HasContext            bool         `json:"hasContext"`
	RetrievalMethod       string       `json:"retrievalMethod"`
	GenerationMethod      string       `json:"generationMethod"`
	Language              string       `json:"language"`
	VisionUsed            bool         `json:"visionUsed"`
	SourcesCount          SourcesCount `json:"sourcesCount"`
	Sources               []Source     `json:"sources,omitempty"`
	SourcePdfs            []SourcePdf  `json:"sourcePdfs,omitempty"`
	TotalResults          int          `json:"totalResults"`
	ProcessingTimeSeconds float64      `json:"processingTimeSeconds"`
	Model                 string       `json:"model,omitempty"`
	VisionModel           string       `json:"visionModel,omitempty"`
	Error                 string       `json:"error,omitempty"`
	Ranked                []RankedItem `json:"rankedResults,omitempty"`
}
