package dto

import "github.com/noah-isme/civil-registry-api/internal/models"

// StatusRequest captures PUT|PATCH /{type}/:id/status payload.
type StatusRequest struct {
	Status models.RecordStatus `json:"status" binding:"required"`
	Reason string              `json:"reason"`
}

// RecordWriteResponse wraps a created record with its quality assessment.
type RecordWriteResponse struct {
	Record       models.Document `json:"record"`
	QualityScore float64         `json:"data_quality_score"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// RecordUpdateResponse returns the updated record and the fields that changed.
type RecordUpdateResponse struct {
	Record  models.Document  `json:"record"`
	Changes models.ChangeSet `json:"changes"`
}

// UploadResponse is returned after a file is attached to a record.
type UploadResponse struct {
	Field     string          `json:"field"`
	Reference string          `json:"reference"`
	Record    models.Document `json:"record"`
}
