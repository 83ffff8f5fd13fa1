package models

import (
	"fmt"
	"strings"
)

// FieldIssue marks one invalid field for inline display.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldIssues returns the lender's invalid required fields.
// Loan bounds of zero are treated as unset.
func (l Lender) FieldIssues() []FieldIssue {
	var issues []FieldIssue
	if strings.TrimSpace(l.Name) == "" {
		issues = append(issues, FieldIssue{Field: LenderFieldName, Message: "Lender name is required"})
	}
	if l.MinLoanAmount <= 0 {
		issues = append(issues, FieldIssue{Field: LenderFieldMinLoanAmount, Message: "Minimum loan amount must be greater than zero"})
	}
	if l.MaxLoanAmount <= 0 {
		issues = append(issues, FieldIssue{Field: LenderFieldMaxLoanAmount, Message: "Maximum loan amount must be greater than zero"})
	}
	return issues
}

// Warnings returns advisory findings that do not make the lender invalid.
func (l Lender) Warnings() []FieldIssue {
	var warnings []FieldIssue
	if l.MinLoanAmount > 0 && l.MaxLoanAmount > 0 && l.MinLoanAmount > l.MaxLoanAmount {
		warnings = append(warnings, FieldIssue{Field: LenderFieldMaxLoanAmount, Message: "Maximum loan amount is below the minimum"})
	}
	return warnings
}

// FieldIssues returns the program's invalid required fields, excluding rules.
func (p Program) FieldIssues() []FieldIssue {
	var issues []FieldIssue
	if strings.TrimSpace(p.ProgramName) == "" {
		issues = append(issues, FieldIssue{Field: ProgramFieldName, Message: "Program name is required"})
	}
	if strings.TrimSpace(p.ProgramCode) == "" {
		issues = append(issues, FieldIssue{Field: ProgramFieldCode, Message: "Program code is required"})
	}
	if strings.TrimSpace(p.CreditTier) == "" {
		issues = append(issues, FieldIssue{Field: ProgramFieldCreditTier, Message: "Credit tier is required"})
	}
	return issues
}

// Warnings returns advisory findings for the program.
func (p Program) Warnings() []FieldIssue {
	var warnings []FieldIssue
	if len(p.Rules) == 0 {
		warnings = append(warnings, FieldIssue{Field: "rules", Message: "Program has no rules defined"})
	}
	if p.MinFitScore < 0 || p.MinFitScore > 100 {
		warnings = append(warnings, FieldIssue{Field: ProgramFieldMinFitScore, Message: "Minimum fit score should be between 0 and 100"})
	}
	return warnings
}

// Rule field names used in issues.
const (
	RuleFieldType     = "rule_type"
	RuleFieldName     = "rule_name"
	RuleFieldCriteria = "criteria"
	RuleFieldWeight   = "weight"
)

// FieldIssues returns the rule's invalid required fields.
func (r Rule) FieldIssues() []FieldIssue {
	var issues []FieldIssue
	if strings.TrimSpace(string(r.RuleType)) == "" {
		issues = append(issues, FieldIssue{Field: RuleFieldType, Message: "Rule type is required"})
	}
	if strings.TrimSpace(r.RuleName) == "" {
		issues = append(issues, FieldIssue{Field: RuleFieldName, Message: "Rule name is required"})
	}
	if err := ValidateCriteria(r.Criteria); err != nil {
		issues = append(issues, FieldIssue{Field: RuleFieldCriteria, Message: "Rule criteria is required"})
	}
	return issues
}

// Warnings returns advisory findings for the rule.
func (r Rule) Warnings() []FieldIssue {
	var warnings []FieldIssue
	if r.RuleType != "" && !r.RuleType.IsKnown() {
		warnings = append(warnings, FieldIssue{Field: RuleFieldType, Message: fmt.Sprintf("Unrecognized rule type %q", r.RuleType)})
	}
	if r.Weight < 0 {
		warnings = append(warnings, FieldIssue{Field: RuleFieldWeight, Message: "Rule weight should not be negative"})
	}
	return warnings
}

// ValidatePolicy runs the local structural checks over a full policy and
// reports them in the same shape and field-path format the extraction
// service uses. It is advisory and never replaces the server verdict.
func ValidatePolicy(data ExtractedPolicyData) ValidationResult {
	var errs, warnings []ValidationFeedback

	for _, issue := range data.Lender.FieldIssues() {
		errs = append(errs, feedback("lender."+issue.Field, issue.Message, SeverityError))
	}
	for _, w := range data.Lender.Warnings() {
		warnings = append(warnings, feedback("lender."+w.Field, w.Message, SeverityWarning))
	}

	if len(data.Programs) == 0 {
		errs = append(errs, feedback("programs", "At least one program is required", SeverityError))
	}

	for i, program := range data.Programs {
		prefix := fmt.Sprintf("programs[%d]", i)
		for _, issue := range program.FieldIssues() {
			errs = append(errs, feedback(prefix+"."+issue.Field, issue.Message, SeverityError))
		}
		for _, w := range program.Warnings() {
			warnings = append(warnings, feedback(prefix+"."+w.Field, w.Message, SeverityWarning))
		}
		for j, rule := range program.Rules {
			rulePrefix := fmt.Sprintf("%s.rules[%d]", prefix, j)
			for _, issue := range rule.FieldIssues() {
				errs = append(errs, feedback(rulePrefix+"."+issue.Field, issue.Message, SeverityError))
			}
			for _, w := range rule.Warnings() {
				warnings = append(warnings, feedback(rulePrefix+"."+w.Field, w.Message, SeverityWarning))
			}
		}
	}

	result := ValidationResult{
		Valid:  len(errs) == 0,
		Errors: append(errs, warnings...),
	}
	if result.Valid {
		result.Suggestions = []string{
			"Review all programs have appropriate credit tiers",
			"Verify rate_metadata contains accurate rate information",
			"Check that is_mandatory flags are correctly set",
		}
	}
	return result
}

func feedback(field, message string, severity Severity) ValidationFeedback {
	return ValidationFeedback{Field: field, Message: message, Severity: severity}
}

// ValidateUploadFile applies the service's upload limits before sending.
func ValidateUploadFile(filename string, size int64) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".pdf") {
		return ErrNotPDF
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > MaxUploadBytes {
		return ErrFileTooLarge
	}
	return nil
}
