package models

import (
	"time"
)

// IngestionStatus tracks a policy PDF picked up from S3.
type IngestionStatus string

const (
	IngestionStatusReceived  IngestionStatus = "received"
	IngestionStatusExtracted IngestionStatus = "extracted"
	IngestionStatusFailed    IngestionStatus = "failed"
)

// Ingestion is one ledger row for an S3 object sent for extraction.
type Ingestion struct {
	ID               int64           `json:"id"`
	S3Key            string          `json:"s3_key"`
	ETag             string          `json:"etag"`
	Filename         string          `json:"filename"`
	SizeBytes        int64           `json:"size_bytes"`
	Status           IngestionStatus `json:"status"`
	ExtractionID     string          `json:"extraction_id,omitempty"`
	ExtractionStatus string          `json:"extraction_status,omitempty"`
	ArchiveKey       string          `json:"archive_key,omitempty"`
	Error            string          `json:"error,omitempty"`
	Attempts         int             `json:"attempts"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IngestionSummary is the outcome of processing one S3 event.
type IngestionSummary struct {
	Received  int      `json:"received"`
	Extracted int      `json:"extracted"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
