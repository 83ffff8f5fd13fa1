// Package models defines the data structures for lender policy review.
package models

import (
	"time"
)

// ExtractionStatus is the outcome reported by the extraction service.
type ExtractionStatus string

const (
	ExtractionStatusSuccess    ExtractionStatus = "success"
	ExtractionStatusFailed     ExtractionStatus = "failed"
	ExtractionStatusProcessing ExtractionStatus = "processing"

	// Older service builds report failures as "error".
	extractionStatusError ExtractionStatus = "error"
)

// IsFailed reports whether the extraction itself failed.
func (s ExtractionStatus) IsFailed() bool {
	return s == ExtractionStatusFailed || s == extractionStatusError
}

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationFeedback is one finding about the extracted data.
type ValidationFeedback struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ValidationResult is the server-computed verdict on extracted data.
type ValidationResult struct {
	Valid       bool                 `json:"valid"`
	Errors      []ValidationFeedback `json:"errors"`
	Suggestions []string             `json:"suggestions"`
}

// PDFMetadata describes the uploaded document.
type PDFMetadata struct {
	Title            string `json:"title"`
	Author           string `json:"author"`
	Subject          string `json:"subject"`
	Creator          string `json:"creator"`
	Producer         string `json:"producer"`
	CreationDate     string `json:"creation_date"`
	ModificationDate string `json:"modification_date"`
	PageCount        int    `json:"page_count"`
}

// ExtractedPolicyData is the structured lender policy pulled from a PDF.
type ExtractedPolicyData struct {
	Lender   Lender    `json:"lender"`
	Programs []Program `json:"programs"`
}

// RuleCount returns the total number of rules across programs.
func (d *ExtractedPolicyData) RuleCount() int {
	total := 0
	for _, p := range d.Programs {
		total += len(p.Rules)
	}
	return total
}

// ExtractionMetadata summarizes an extraction run.
type ExtractionMetadata struct {
	CharacterCount int  `json:"pdf_characters"`
	ProgramCount   int  `json:"programs_count"`
	RuleCount      int  `json:"total_rules"`
	Enhanced       bool `json:"enhanced"`
	Validated      bool `json:"validated"`
}

// ExtractionResult is the full server view of one extraction.
type ExtractionResult struct {
	ExtractionID       string               `json:"extraction_id"`
	Status             ExtractionStatus     `json:"status"`
	PDFFilename        string               `json:"pdf_filename"`
	PDFMetadata        *PDFMetadata         `json:"pdf_metadata,omitempty"`
	ExtractedData      *ExtractedPolicyData `json:"extracted_data,omitempty"`
	Validation         *ValidationResult    `json:"validation,omitempty"`
	ExtractionMetadata *ExtractionMetadata  `json:"extraction_metadata,omitempty"`
	Error              string               `json:"error,omitempty"`
	ErrorType          string               `json:"error_type,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}

// HasData reports whether the result carries editable policy data.
func (r *ExtractionResult) HasData() bool {
	return r != nil && r.ExtractedData != nil
}

// ApprovalBlocked reports why approval is not available, or "" when it is.
// A result without a validation verdict is approvable; a verdict of
// valid=false blocks approval until the server reports otherwise.
func (r *ExtractionResult) ApprovalBlocked() string {
	switch {
	case r == nil:
		return "no extraction loaded"
	case r.Status.IsFailed():
		return "Cannot approve failed extraction"
	case r.Status != ExtractionStatusSuccess:
		return "Extraction is not complete"
	case r.ExtractedData == nil:
		return "No extracted data to approve"
	case r.Validation != nil && !r.Validation.Valid:
		return "Extraction has validation errors"
	default:
		return ""
	}
}

// CanApprove reports whether the approve action should be enabled.
func (r *ExtractionResult) CanApprove() bool {
	return r.ApprovalBlocked() == ""
}

// ExtractionListItem is the summary row returned by the list endpoint.
type ExtractionListItem struct {
	ExtractionID  string           `json:"extraction_id"`
	PDFFilename   string           `json:"pdf_filename"`
	Status        ExtractionStatus `json:"status"`
	LenderName    string           `json:"lender_name,omitempty"`
	ProgramsCount int              `json:"programs_count"`
	CreatedAt     time.Time        `json:"created_at"`
	Approved      bool             `json:"approved"`
}

// ExtractionList is the list endpoint response.
type ExtractionList struct {
	Extractions []ExtractionListItem `json:"extractions"`
	Total       int                  `json:"total"`
}

// UpdateExtractionRequest carries edited data back to the service.
type UpdateExtractionRequest struct {
	Lender   *Lender   `json:"lender,omitempty"`
	Programs []Program `json:"programs,omitempty"`
}

// ApprovalResponse is returned once the extraction is persisted.
type ApprovalResponse struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	LenderID   string   `json:"lender_id,omitempty"`
	ProgramIDs []string `json:"program_ids"`
}

// UploadOptions are the extraction flags sent with an upload.
type UploadOptions struct {
	Enhance            bool
	ValidateExtraction bool
}
