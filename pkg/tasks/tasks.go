// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "multimodal-rag-go/internal/model"

// IngestionTask represents one parsed PDF waiting to be written to the vector collections.
// Either Extraction is inlined, or ObjectKey points at the extraction JSON in object storage.
type IngestionTask struct {
	TaskID     string                  `json:"task_id"`
	Source     string                  `json:"source,omitempty"`
	Bucket     string                  `json:"bucket,omitempty"`
	ObjectKey  string                  `json:"object_key,omitempty"`
	Extraction *model.ExtractionResult `json:"extraction,omitempty"`
}
