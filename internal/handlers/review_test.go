package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-policy-review/internal/editor"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/extraction"
	"lender-policy-review/internal/workflow"
)

// fakeExtractionService emulates the extraction REST API for one extraction.
type fakeExtractionService struct {
	mu       sync.Mutex
	result   *models.ExtractionResult
	updates  []models.UpdateExtractionRequest
	deleted  []string
	approved []string
}

func (f *fakeExtractionService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, extraction.APIPrefix)
	switch {
	case r.Method == http.MethodPost && path == "/upload":
		f.result = &models.ExtractionResult{
			ExtractionID: "x1",
			Status:       models.ExtractionStatusSuccess,
			PDFFilename:  "acme.pdf",
			ExtractedData: &models.ExtractedPolicyData{
				Lender: models.Lender{Name: "Acme Capital", MinLoanAmount: 10000, MaxLoanAmount: 500000},
				Programs: []models.Program{{
					ProgramName: "Tier A", ProgramCode: "A", CreditTier: "A", MinFitScore: 70,
					Rules: []models.Rule{{RuleType: models.RuleTypeMinFICO, RuleName: "FICO", Criteria: map[string]any{"min_score": 700.0}, Weight: 1, IsMandatory: true}},
				}},
			},
			Validation: &models.ValidationResult{
				Valid:  false,
				Errors: []models.ValidationFeedback{{Field: "lender.description", Message: "Description is required", Severity: models.SeverityError}},
			},
			CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		}
		writeJSON(w, http.StatusOK, f.result)
	case r.Method == http.MethodGet && path == "":
		writeJSON(w, http.StatusOK, models.ExtractionList{
			Extractions: []models.ExtractionListItem{
				{ExtractionID: "old", PDFFilename: "old.pdf", Status: models.ExtractionStatusSuccess, CreatedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
				{ExtractionID: "new", PDFFilename: "new.pdf", Status: models.ExtractionStatusSuccess, CreatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
			},
			Total: 2,
		})
	case r.Method == http.MethodGet && path == "/missing":
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Extraction not found"})
	case r.Method == http.MethodPut && path == "/x1":
		var req models.UpdateExtractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		f.updates = append(f.updates, req)
		next := *f.result
		data := *next.ExtractedData
		if req.Lender != nil {
			data.Lender = *req.Lender
		}
		if req.Programs != nil {
			data.Programs = req.Programs
		}
		next.ExtractedData = &data
		next.Validation = &models.ValidationResult{Valid: data.Lender.Description != ""}
		f.result = &next
		writeJSON(w, http.StatusOK, f.result)
	case r.Method == http.MethodPost && path == "/x1/approve":
		f.approved = append(f.approved, "x1")
		writeJSON(w, http.StatusOK, models.ApprovalResponse{
			Success: true, Message: "Successfully created lender 'Acme Capital' with 1 programs",
			LenderID: "L1", ProgramIDs: []string{"P1"},
		})
	case r.Method == http.MethodDelete && path == "/x1":
		f.deleted = append(f.deleted, "x1")
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

// stateEnvelope decodes the parts of ReviewState the tests look at.
type stateEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    struct {
		Session struct {
			State                 string `json:"state"`
			Status                string `json:"status"`
			CanApprove            bool   `json:"can_approve"`
			ErrorMessage          string `json:"error_message"`
			ApprovalBlockedReason string `json:"approval_blocked_reason"`
			Approval              *struct {
				LenderID string `json:"lender_id"`
			} `json:"approval"`
		} `json:"session"`
		Editor struct {
			Loaded bool `json:"loaded"`
			Dirty  bool `json:"dirty"`
			Lender struct {
				Name           string   `json:"name"`
				Description    string   `json:"description"`
				ExcludedStates []string `json:"excluded_states"`
			} `json:"lender"`
			Programs []struct {
				ID          string `json:"id"`
				Expanded    bool   `json:"expanded"`
				ProgramName string `json:"program_name"`
				Rules       []struct {
					ID           string         `json:"id"`
					RuleName     string         `json:"rule_name"`
					Criteria     map[string]any `json:"criteria"`
					CriteriaText string         `json:"criteria_text"`
					ParseError   string         `json:"parse_error"`
				} `json:"rules"`
			} `json:"programs"`
		} `json:"editor"`
	} `json:"data"`
}

type reviewFixture struct {
	service *fakeExtractionService
	handler http.Handler
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	service := &fakeExtractionService{}
	srv := httptest.NewServer(service)
	t.Cleanup(srv.Close)

	client := extraction.NewClient(srv.URL, extraction.WithLogger(zap.NewNop()))
	ed := editor.New(editor.WithLogger(zap.NewNop()))
	controller := workflow.NewController(client,
		workflow.WithLogger(zap.NewNop()),
		workflow.WithResultListener(ed),
		workflow.WithScheduler(func(time.Duration, func()) func() bool { return func() bool { return true } }),
	)
	ed.SetCommitter(controller)

	mux := http.NewServeMux()
	NewReviewAPI(controller, ed, zap.NewNop()).Register(mux)
	return &reviewFixture{service: service, handler: mux}
}

func (f *reviewFixture) do(t *testing.T, method, path string, body interface{}) (int, stateEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env stateEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *reviewFixture) upload(t *testing.T, filename string, content []byte) (int, stateEnvelope) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/session/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env stateEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestReviewAPI_IdleState(t *testing.T) {
	f := newReviewFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, "idle", env.Data.Session.State)
	assert.False(t, env.Data.Editor.Loaded)

	code, env = f.do(t, http.MethodPost, "/api/session/approve", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)

	code, _ = f.do(t, http.MethodPatch, "/api/editor/lender", map[string]any{"field": "name", "value": "x"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestReviewAPI_UploadRejectsNonPDF(t *testing.T) {
	f := newReviewFixture(t)

	code, env := f.upload(t, "policy.docx", []byte("not a pdf"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "File must be a PDF", env.Error)
	assert.Equal(t, "File must be a PDF", env.Data.Session.ErrorMessage)
	assert.Equal(t, "idle", env.Data.Session.State)
}

func TestReviewAPI_ReviewEditSaveApprove(t *testing.T) {
	f := newReviewFixture(t)

	code, env := f.upload(t, "acme.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "reviewing", env.Data.Session.State)
	assert.False(t, env.Data.Session.CanApprove)
	assert.Equal(t, "Extraction has validation errors", env.Data.Session.ApprovalBlockedReason)
	require.True(t, env.Data.Editor.Loaded)
	require.Len(t, env.Data.Editor.Programs, 1)
	assert.True(t, env.Data.Editor.Programs[0].Expanded)

	code, env = f.do(t, http.MethodPost, "/api/session/approve", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Empty(t, f.service.approved)

	code, env = f.do(t, http.MethodPatch, "/api/editor/lender", map[string]any{"field": "description", "value": "Equipment finance"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, env.Data.Editor.Dirty)
	assert.Equal(t, "Equipment finance", env.Data.Editor.Lender.Description)

	code, env = f.do(t, http.MethodPost, "/api/editor/lender/excluded-states", map[string]string{"value": "ca"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, []string{"CA"}, env.Data.Editor.Lender.ExcludedStates)

	code, env = f.do(t, http.MethodPost, "/api/editor/programs", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.Data.Editor.Programs, 2)
	newProgram := env.Data.Editor.Programs[1].ID
	assert.Equal(t, "New Program", env.Data.Editor.Programs[1].ProgramName)

	code, env = f.do(t, http.MethodPatch, "/api/editor/programs/"+newProgram, map[string]any{"field": "program_name", "value": "Tier B"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "Tier B", env.Data.Editor.Programs[1].ProgramName)

	code, env = f.do(t, http.MethodPost, "/api/editor/programs/"+newProgram+"/toggle", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Data.Editor.Programs[1].Expanded)

	code, env = f.do(t, http.MethodPost, "/api/editor/programs/"+newProgram+"/rules", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.Data.Editor.Programs[1].Rules, 1)
	ruleID := env.Data.Editor.Programs[1].Rules[0].ID

	code, env = f.do(t, http.MethodPut, "/api/editor/rules/"+ruleID+"/criteria", map[string]string{"text": `{"min_score": `})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.NotEmpty(t, env.Data.Editor.Programs[1].Rules[0].ParseError)

	code, env = f.do(t, http.MethodPut, "/api/editor/rules/"+ruleID+"/criteria", map[string]string{"text": `{"min_score": 650}`})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Empty(t, env.Data.Editor.Programs[1].Rules[0].ParseError)
	assert.Equal(t, map[string]any{"min_score": 650.0}, env.Data.Editor.Programs[1].Rules[0].Criteria)

	code, env = f.do(t, http.MethodPut, "/api/editor/rules/"+ruleID, map[string]any{
		"rule_type": "min_fico", "rule_name": "FICO floor", "criteria": map[string]any{"min_score": 640},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "FICO floor", env.Data.Editor.Programs[1].Rules[0].RuleName)

	code, env = f.do(t, http.MethodPost, "/api/session/save", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.False(t, env.Data.Editor.Dirty)
	assert.True(t, env.Data.Session.CanApprove)
	require.Len(t, f.service.updates, 1)
	require.Len(t, f.service.updates[0].Programs, 2)
	assert.Equal(t, "Tier B", f.service.updates[0].Programs[1].ProgramName)
	assert.Equal(t, 1.0, f.service.updates[0].Programs[1].Rules[0].Weight, "omitted weight gets the default")

	code, env = f.do(t, http.MethodPost, "/api/session/approve", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "approved", env.Data.Session.State)
	assert.Equal(t, "succeeded", env.Data.Session.Status)
	require.NotNil(t, env.Data.Session.Approval)
	assert.Equal(t, "L1", env.Data.Session.Approval.LenderID)

	code, env = f.do(t, http.MethodPost, "/api/session/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", env.Data.Session.State)
	assert.False(t, env.Data.Editor.Loaded)
}

func TestReviewAPI_EditorNotFound(t *testing.T) {
	f := newReviewFixture(t)
	code, _ := f.upload(t, "acme.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusOK, code)

	code, env := f.do(t, http.MethodDelete, "/api/editor/programs/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, _ = f.do(t, http.MethodDelete, "/api/editor/rules/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = f.do(t, http.MethodPatch, "/api/editor/lender", map[string]any{"field": "color", "value": "red"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "unknown field")
}

func TestReviewAPI_DeleteProgramAndRule(t *testing.T) {
	f := newReviewFixture(t)
	_, env := f.upload(t, "acme.pdf", []byte("%PDF-1.7"))
	programID := env.Data.Editor.Programs[0].ID
	ruleID := env.Data.Editor.Programs[0].Rules[0].ID

	code, env := f.do(t, http.MethodDelete, "/api/editor/rules/"+ruleID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, env.Data.Editor.Programs[0].Rules)

	code, env = f.do(t, http.MethodDelete, "/api/editor/programs/"+programID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, env.Data.Editor.Programs)
	assert.True(t, env.Data.Editor.Dirty)
}

func TestReviewAPI_DiscardRequiresConfirmation(t *testing.T) {
	f := newReviewFixture(t)
	code, _ := f.upload(t, "acme.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusOK, code)

	code, env := f.do(t, http.MethodPost, "/api/session/discard", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, workflow.DiscardPrompt, env.Message)
	assert.Equal(t, "reviewing", env.Data.Session.State)
	assert.Empty(t, f.service.deleted)

	code, env = f.do(t, http.MethodPost, "/api/session/discard?confirm=true", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "idle", env.Data.Session.State)
	assert.False(t, env.Data.Editor.Loaded)
	assert.Equal(t, []string{"x1"}, f.service.deleted)
}

func TestReviewAPI_ListAndOpen(t *testing.T) {
	f := newReviewFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/extractions", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Success bool                  `json:"success"`
		Data    models.ExtractionList `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data.Extractions, 2)
	assert.Equal(t, "new", list.Data.Extractions[0].ExtractionID)

	code, env := f.do(t, http.MethodPost, "/api/extractions/missing/open", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "Extraction not found", env.Error)
	assert.Equal(t, "Extraction not found", env.Data.Session.ErrorMessage)

	code, env = f.do(t, http.MethodPost, "/api/session/clear-error", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, env.Data.Session.ErrorMessage)
}
