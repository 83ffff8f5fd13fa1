package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"lender-policy-review/internal/editor"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/extraction"
	"lender-policy-review/internal/utils"
	"lender-policy-review/internal/workflow"
)

// multipart overhead allowed on top of the PDF itself
const uploadFormSlack = 1 << 20

// ReviewAPI exposes the review session and its policy editor to the form UI.
type ReviewAPI struct {
	controller *workflow.Controller
	editor     *editor.Editor
	logger     *zap.Logger
}

// NewReviewAPI creates the review API over a controller and its editor.
func NewReviewAPI(controller *workflow.Controller, ed *editor.Editor, logger *zap.Logger) *ReviewAPI {
	return &ReviewAPI{
		controller: controller,
		editor:     ed,
		logger:     utils.OrDefault(logger, "review-api"),
	}
}

// ReviewState is returned by every session and editor endpoint.
type ReviewState struct {
	Session workflow.Session `json:"session"`
	Editor  editor.View      `json:"editor"`
}

type fieldUpdate struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type criteriaRequest struct {
	Text string `json:"text"`
}

// Register mounts the API routes on mux.
func (a *ReviewAPI) Register(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("GET /api/session", a.getState)
	mux.HandleFunc("POST /api/session/upload", a.upload)
	mux.HandleFunc("POST /api/session/save", a.save)
	mux.HandleFunc("POST /api/session/approve", a.approve)
	mux.HandleFunc("POST /api/session/discard", a.discard)
	mux.HandleFunc("POST /api/session/reset", a.reset)
	mux.HandleFunc("POST /api/session/clear-error", a.clearError)

	// Extractions
	mux.HandleFunc("GET /api/extractions", a.listExtractions)
	mux.HandleFunc("POST /api/extractions/{id}/open", a.openExtraction)

	// Editor
	mux.HandleFunc("GET /api/editor", a.getEditor)
	mux.HandleFunc("PATCH /api/editor/lender", a.updateLender)
	mux.HandleFunc("POST /api/editor/lender/excluded-states", a.addExcludedState)
	mux.HandleFunc("DELETE /api/editor/lender/excluded-states/{code}", a.removeExcludedState)
	mux.HandleFunc("POST /api/editor/lender/excluded-industries", a.addExcludedIndustry)
	mux.HandleFunc("DELETE /api/editor/lender/excluded-industries/{name}", a.removeExcludedIndustry)
	mux.HandleFunc("POST /api/editor/programs", a.addProgram)
	mux.HandleFunc("PATCH /api/editor/programs/{programID}", a.updateProgram)
	mux.HandleFunc("DELETE /api/editor/programs/{programID}", a.deleteProgram)
	mux.HandleFunc("POST /api/editor/programs/{programID}/toggle", a.toggleProgram)
	mux.HandleFunc("POST /api/editor/programs/{programID}/rules", a.addRule)
	mux.HandleFunc("PUT /api/editor/rules/{ruleID}", a.updateRule)
	mux.HandleFunc("DELETE /api/editor/rules/{ruleID}", a.deleteRule)
	mux.HandleFunc("PUT /api/editor/rules/{ruleID}/criteria", a.setCriteria)
}

func (a *ReviewAPI) state() ReviewState {
	return ReviewState{Session: a.controller.Snapshot(), Editor: a.editor.Snapshot()}
}

func (a *ReviewAPI) respond(w http.ResponseWriter, err error) {
	if err != nil {
		a.fail(w, err)
		return
	}
	writeData(w, a.state())
}

func (a *ReviewAPI) fail(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("Review request failed", zap.Error(err))
	}
	resp := Response{Success: false, Error: msg, Data: a.state()}
	if errors.Is(err, workflow.ErrDiscardNotConfirmed) {
		resp.Message = workflow.DiscardPrompt
	}
	writeJSON(w, status, resp)
}

// errorStatus maps an error onto an HTTP status and the text shown to the operator.
func errorStatus(err error) (int, string) {
	var apiErr *extraction.APIError
	switch {
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, extraction.Message(err)
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrSuperseded),
		errors.Is(err, editor.ErrNoWorkingCopy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, workflow.ErrApprovalBlocked):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, models.ErrProgramNotFound),
		errors.Is(err, models.ErrRuleNotFound),
		errors.Is(err, models.ErrProgramIndexOutOfRange),
		errors.Is(err, models.ErrRuleIndexOutOfRange):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, models.ErrFileTooLarge.Error()
	case errors.Is(err, models.ErrNotPDF):
		return http.StatusBadRequest, models.ErrNotPDF.Error()
	case errors.Is(err, workflow.ErrDiscardNotConfirmed),
		errors.Is(err, models.ErrEmptyFile),
		errors.Is(err, models.ErrUnknownField),
		errors.Is(err, models.ErrInvalidFieldValue),
		errors.Is(err, editor.ErrCriteriaParse):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, extraction.Message(err)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", models.ErrInvalidFieldValue, err)
	}
	return nil
}

func (a *ReviewAPI) getState(w http.ResponseWriter, _ *http.Request) {
	writeData(w, a.state())
}

func (a *ReviewAPI) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, models.MaxUploadBytes+uploadFormSlack)
	if err := r.ParseMultipartForm(models.MaxUploadBytes + uploadFormSlack); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, models.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid upload form", a.state())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file", a.state())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, models.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file", a.state())
		return
	}

	_, err = a.controller.Upload(r.Context(), header.Filename, data)
	a.respond(w, err)
}

func (a *ReviewAPI) save(w http.ResponseWriter, r *http.Request) {
	_, err := a.editor.Save(r.Context())
	a.respond(w, err)
}

func (a *ReviewAPI) approve(w http.ResponseWriter, r *http.Request) {
	_, err := a.controller.Approve(r.Context())
	a.respond(w, err)
}

func (a *ReviewAPI) discard(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	_, err := a.controller.Discard(r.Context(), workflow.Confirmed(confirmed))
	a.respond(w, err)
}

func (a *ReviewAPI) reset(w http.ResponseWriter, _ *http.Request) {
	a.controller.Reset()
	writeData(w, a.state())
}

func (a *ReviewAPI) clearError(w http.ResponseWriter, _ *http.Request) {
	a.controller.ClearError()
	writeData(w, a.state())
}

func (a *ReviewAPI) listExtractions(w http.ResponseWriter, r *http.Request) {
	list, err := a.controller.List(r.Context())
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg, nil)
		return
	}
	writeData(w, list)
}

func (a *ReviewAPI) openExtraction(w http.ResponseWriter, r *http.Request) {
	_, err := a.controller.Open(r.Context(), r.PathValue("id"))
	a.respond(w, err)
}

func (a *ReviewAPI) getEditor(w http.ResponseWriter, _ *http.Request) {
	writeData(w, a.editor.Snapshot())
}

func (a *ReviewAPI) updateLender(w http.ResponseWriter, r *http.Request) {
	var req fieldUpdate
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, a.editor.UpdateLenderField(req.Field, req.Value))
}

func (a *ReviewAPI) addExcludedState(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, a.editor.AddExcludedState(req.Value))
}

func (a *ReviewAPI) removeExcludedState(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.editor.RemoveExcludedState(r.PathValue("code")))
}

func (a *ReviewAPI) addExcludedIndustry(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, a.editor.AddExcludedIndustry(req.Value))
}

func (a *ReviewAPI) removeExcludedIndustry(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.editor.RemoveExcludedIndustry(r.PathValue("name")))
}

func (a *ReviewAPI) addProgram(w http.ResponseWriter, _ *http.Request) {
	_, err := a.editor.AddProgram()
	a.respond(w, err)
}

func (a *ReviewAPI) updateProgram(w http.ResponseWriter, r *http.Request) {
	var req fieldUpdate
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, a.editor.UpdateProgramFieldByID(r.PathValue("programID"), req.Field, req.Value))
}

func (a *ReviewAPI) deleteProgram(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.editor.DeleteProgramByID(r.PathValue("programID")))
}

func (a *ReviewAPI) toggleProgram(w http.ResponseWriter, r *http.Request) {
	_, err := a.editor.ToggleProgramExpandedByID(r.PathValue("programID"))
	a.respond(w, err)
}

func (a *ReviewAPI) addRule(w http.ResponseWriter, r *http.Request) {
	_, err := a.editor.AddRuleByID(r.PathValue("programID"))
	a.respond(w, err)
}

func (a *ReviewAPI) updateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if err := decodeBody(r, &rule); err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, a.editor.UpdateRuleByID(r.PathValue("ruleID"), rule))
}

func (a *ReviewAPI) deleteRule(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.editor.DeleteRuleByID(r.PathValue("ruleID")))
}

func (a *ReviewAPI) setCriteria(w http.ResponseWriter, r *http.Request) {
	var req criteriaRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	// a parse error is kept on the rule and shown in the view
	err := a.editor.SetCriteriaDraftByID(r.PathValue("ruleID"), req.Text)
	if errors.Is(err, editor.ErrCriteriaParse) {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error(), Data: a.state()})
		return
	}
	a.respond(w, err)
}
