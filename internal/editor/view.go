package editor

import (
	"lender-policy-review/internal/models"
)

// View is a read-only rendering of the working copy with display validity.
type View struct {
	ExtractionID string        `json:"extraction_id,omitempty"`
	Loaded       bool          `json:"loaded"`
	Dirty        bool          `json:"dirty"`
	Lender       LenderView    `json:"lender"`
	Programs     []ProgramView `json:"programs"`

	// Feedback is the local structural check of the whole working copy,
	// shaped like the service's validation verdict. Nil when nothing is loaded.
	Feedback *models.ValidationResult `json:"feedback,omitempty"`
}

// LenderView is the lender plus its field findings.
type LenderView struct {
	models.Lender
	Issues   []models.FieldIssue `json:"issues,omitempty"`
	Warnings []models.FieldIssue `json:"warnings,omitempty"`
}

// ProgramView is one program as rendered in the form.
type ProgramView struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Expanded bool   `json:"expanded"`
	models.Program
	Rules    []RuleView          `json:"rules"`
	Issues   []models.FieldIssue `json:"issues,omitempty"`
	Warnings []models.FieldIssue `json:"warnings,omitempty"`
}

// RuleView is one rule with its criteria text and any pending parse error.
type RuleView struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	models.Rule
	CriteriaText string              `json:"criteria_text"`
	ParseError   string              `json:"parse_error,omitempty"`
	Issues       []models.FieldIssue `json:"issues,omitempty"`
	Warnings     []models.FieldIssue `json:"warnings,omitempty"`
}

// Valid reports whether the rule has no required-field issues.
func (r RuleView) Valid() bool {
	return len(r.Issues) == 0 && r.ParseError == ""
}

// Snapshot renders the current working copy.
func (e *Editor) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := View{
		ExtractionID: e.extractionID,
		Loaded:       e.loaded,
		Dirty:        e.editSeq != e.savedSeq,
		Lender: LenderView{
			Lender:   e.lender.Clone(),
			Issues:   e.lender.FieldIssues(),
			Warnings: e.lender.Warnings(),
		},
		Programs: make([]ProgramView, 0, len(e.programs)),
	}
	if !e.loaded {
		view.Lender.Issues, view.Lender.Warnings = nil, nil
	}

	if e.loaded {
		feedback := models.ValidatePolicy(models.ExtractedPolicyData{
			Lender:   e.lender,
			Programs: e.programsLocked(),
		})
		view.Feedback = &feedback
	}

	for i, entry := range e.programs {
		full := entry.program.Clone()
		rules := make([]RuleView, 0, len(entry.rules))
		for j, r := range entry.rules {
			full.Rules = append(full.Rules, r.rule)
			rules = append(rules, r.view(j))
		}

		program := entry.program.Clone()
		view.Programs = append(view.Programs, ProgramView{
			ID:       entry.id,
			Index:    i,
			Expanded: e.expanded[entry.id],
			Program:  program,
			Rules:    rules,
			Issues:   full.FieldIssues(),
			Warnings: full.Warnings(),
		})
	}
	return view
}

func (r *ruleEntry) view(index int) RuleView {
	v := RuleView{
		ID:           r.id,
		Index:        index,
		Rule:         r.rule.Clone(),
		CriteriaText: models.FormatCriteria(r.rule.Criteria),
		Issues:       r.rule.FieldIssues(),
		Warnings:     r.rule.Warnings(),
	}
	if r.draft != nil {
		v.CriteriaText = *r.draft
	}
	if r.parseErr != nil {
		v.ParseError = r.parseErr.Error()
	}
	return v
}
