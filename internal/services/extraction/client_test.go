package extraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/extraction"
)

const sampleResult = `{
	"extraction_id": "5f1f6c1e-8d55-4e8a-9a57-3f2f0b1f9d10",
	"status": "success",
	"pdf_filename": "acme.pdf",
	"extracted_data": {
		"lender": {"name": "Acme Capital", "min_loan_amount": 10000, "max_loan_amount": 500000},
		"programs": [{"program_name": "Tier A", "program_code": "A", "credit_tier": "A", "rules": []}]
	},
	"validation": {"valid": false, "errors": [{"field": "programs[0].rules", "message": "Program has no rules defined", "severity": "warning"}], "suggestions": []},
	"extraction_metadata": {"pdf_characters": 4200, "programs_count": 1, "total_rules": 0, "enhanced": false, "validated": true},
	"created_at": "2026-10-01T12:00:00Z"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *extraction.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return extraction.NewClient(srv.URL+"/", extraction.WithLogger(zap.NewNop()))
}

func TestClient_Upload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/policy-extraction/upload", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("enhance"))
		assert.Equal(t, "false", r.URL.Query().Get("validate_extraction"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "acme.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.7 test", string(content))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(sampleResult))
	})

	result, err := client.Upload(context.Background(), "acme.pdf", strings.NewReader("%PDF-1.7 test"),
		models.UploadOptions{Enhance: true, ValidateExtraction: false})
	require.NoError(t, err)

	assert.Equal(t, models.ExtractionStatusSuccess, result.Status)
	require.NotNil(t, result.ExtractedData)
	assert.Equal(t, "Acme Capital", result.ExtractedData.Lender.Name)
	require.Len(t, result.ExtractedData.Programs, 1)
	assert.Equal(t, 60.0, result.ExtractedData.Programs[0].MinFitScore)
	assert.Equal(t, 4200, result.ExtractionMetadata.CharacterCount)
	assert.False(t, result.CanApprove())
}

func TestClient_ListGetApproveDelete(t *testing.T) {
	var deleted bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/policy-extraction":
			_, _ = w.Write([]byte(`{"extractions": [{"extraction_id": "x1", "pdf_filename": "a.pdf", "status": "success", "lender_name": "Acme Capital", "programs_count": 2, "created_at": "2026-10-01T12:00:00Z"}], "total": 1}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/policy-extraction/x1":
			_, _ = w.Write([]byte(sampleResult))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/policy-extraction/x1/approve":
			_, _ = w.Write([]byte(`{"success": true, "message": "Successfully created lender 'Acme Capital' with 1 programs", "lender_id": "L1", "program_ids": ["P1"]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/policy-extraction/x1":
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "Acme Capital", list.Extractions[0].LenderName)

	result, err := client.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "acme.pdf", result.PDFFilename)

	approval, err := client.Approve(ctx, "x1")
	require.NoError(t, err)
	assert.True(t, approval.Success)
	assert.Equal(t, "L1", approval.LenderID)
	assert.Equal(t, []string{"P1"}, approval.ProgramIDs)

	require.NoError(t, client.Delete(ctx, "x1"))
	assert.True(t, deleted)
}

func TestClient_UpdateSendsPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Lender   models.Lender    `json:"lender"`
			Programs []models.Program `json:"programs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Acme Capital LLC", body.Lender.Name)
		assert.Len(t, body.Programs, 1)

		_, _ = w.Write([]byte(sampleResult))
	})

	lender := models.Lender{Name: "Acme Capital LLC", MinLoanAmount: 1, MaxLoanAmount: 2}
	_, err := client.Update(context.Background(), "x1", models.UpdateExtractionRequest{
		Lender:   &lender,
		Programs: []models.Program{models.NewProgram()},
	})
	require.NoError(t, err)
}

func TestClient_ErrorDetail(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"string detail", http.StatusBadRequest, `{"detail": "File must be a PDF"}`, "File must be a PDF"},
		{"list detail", http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}, {"msg": "value is not a valid float"}]}`, "field required; value is not a valid float"},
		{"no detail", http.StatusInternalServerError, `{"error": "boom"}`, extraction.GenericErrorMessage},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, extraction.GenericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Get(context.Background(), "x1")
			require.Error(t, err)

			var apiErr *extraction.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, extraction.Message(err))
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := extraction.NewClient(baseURL, extraction.WithLogger(zap.NewNop()))
	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, extraction.GenericErrorMessage, extraction.Message(err))
}

func TestMessage_Nil(t *testing.T) {
	assert.Equal(t, "", extraction.Message(nil))
}
