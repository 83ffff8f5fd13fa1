// Package models defines the data structures for lender policy review.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleType identifies the kind of eligibility check a rule performs.
type RuleType string

const (
	// Credit
	RuleTypeMinFICO              RuleType = "min_fico"
	RuleTypeMinPayNet            RuleType = "min_paynet"
	RuleTypeCreditTier           RuleType = "credit_tier"
	RuleTypeMaxCreditUtilization RuleType = "max_credit_utilization"

	// Business
	RuleTypeTimeInBusiness RuleType = "time_in_business"
	RuleTypeMinRevenue     RuleType = "min_revenue"
	RuleTypeLegalStructure RuleType = "legal_structure"

	// Loan
	RuleTypeMinLoanAmount  RuleType = "min_loan_amount"
	RuleTypeMaxLoanAmount  RuleType = "max_loan_amount"
	RuleTypeMinLoanTerm    RuleType = "min_loan_term"
	RuleTypeMaxLoanTerm    RuleType = "max_loan_term"
	RuleTypeMinDownPayment RuleType = "min_down_payment"
	RuleTypeMaxLTV         RuleType = "max_ltv"

	// Equipment
	RuleTypeEquipmentType      RuleType = "equipment_type"
	RuleTypeEquipmentAge       RuleType = "equipment_age"
	RuleTypeEquipmentCondition RuleType = "equipment_condition"

	// Geographic and industry
	RuleTypeExcludedStates     RuleType = "excluded_states"
	RuleTypeExcludedIndustries RuleType = "excluded_industries"
	RuleTypeAllowedStates      RuleType = "allowed_states"
	RuleTypeAllowedIndustries  RuleType = "allowed_industries"

	// Guarantor
	RuleTypeBankruptcyHistory RuleType = "bankruptcy_history"
	RuleTypeHomeownerRequired RuleType = "homeowner_required"
	RuleTypeUSCitizenRequired RuleType = "us_citizen_required"

	RuleTypeCustom RuleType = "custom"
)

// ValidRuleTypes returns the rule types the matching engine understands.
func ValidRuleTypes() []RuleType {
	return []RuleType{
		RuleTypeMinFICO, RuleTypeMinPayNet, RuleTypeCreditTier, RuleTypeMaxCreditUtilization,
		RuleTypeTimeInBusiness, RuleTypeMinRevenue, RuleTypeLegalStructure,
		RuleTypeMinLoanAmount, RuleTypeMaxLoanAmount, RuleTypeMinLoanTerm, RuleTypeMaxLoanTerm,
		RuleTypeMinDownPayment, RuleTypeMaxLTV,
		RuleTypeEquipmentType, RuleTypeEquipmentAge, RuleTypeEquipmentCondition,
		RuleTypeExcludedStates, RuleTypeExcludedIndustries, RuleTypeAllowedStates, RuleTypeAllowedIndustries,
		RuleTypeBankruptcyHistory, RuleTypeHomeownerRequired, RuleTypeUSCitizenRequired,
		RuleTypeCustom,
	}
}

// IsKnown checks if the rule type is one of the catalogued types.
func (t RuleType) IsKnown() bool {
	for _, valid := range ValidRuleTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Defaults applied when the extraction omits a value.
const (
	DefaultMinFitScore = 60.0
	DefaultRuleWeight  = 1.0
)

// Lender is the extracted lender profile.
type Lender struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	MinLoanAmount      float64  `json:"min_loan_amount"`
	MaxLoanAmount      float64  `json:"max_loan_amount"`
	ExcludedStates     []string `json:"excluded_states"`
	ExcludedIndustries []string `json:"excluded_industries"`
}

// RateTable is one base-rate band of a program.
type RateTable struct {
	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
	MinTerm   *int     `json:"min_term,omitempty"`
	MaxTerm   *int     `json:"max_term,omitempty"`
	Rate      float64  `json:"rate"`
}

// RateAdjustment is a conditional delta applied on top of a base rate.
type RateAdjustment struct {
	Condition   string  `json:"condition"`
	Delta       float64 `json:"delta"`
	Description string  `json:"description"`
}

// RateMetadata holds a program's base rates and adjustments.
type RateMetadata struct {
	BaseRates   []RateTable      `json:"base_rates"`
	Adjustments []RateAdjustment `json:"adjustments"`
}

// Rule is a single eligibility rule within a program.
type Rule struct {
	RuleType    RuleType       `json:"rule_type"`
	RuleName    string         `json:"rule_name"`
	Criteria    map[string]any `json:"criteria"`
	Weight      float64        `json:"weight"`
	IsMandatory bool           `json:"is_mandatory"`
}

// UnmarshalJSON applies the weight and mandatory defaults for omitted keys.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type rawRule Rule
	aux := rawRule{Weight: DefaultRuleWeight, IsMandatory: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Rule(aux)
	return nil
}

// NewRule returns the rule appended by the editor's add-rule action.
func NewRule() Rule {
	return Rule{
		RuleType:    RuleTypeMinFICO,
		RuleName:    "New Rule",
		Criteria:    map[string]any{},
		Weight:      DefaultRuleWeight,
		IsMandatory: true,
	}
}

// Program is a lender program (credit tier) with its rules.
type Program struct {
	ProgramName           string         `json:"program_name"`
	ProgramCode           string         `json:"program_code"`
	CreditTier            string         `json:"credit_tier"`
	MinFitScore           float64        `json:"min_fit_score"`
	Description           string         `json:"description"`
	EligibilityConditions map[string]any `json:"eligibility_conditions"`
	RateMetadata          *RateMetadata  `json:"rate_metadata,omitempty"`
	Rules                 []Rule         `json:"rules"`
}

// UnmarshalJSON applies the fit score default for an omitted key.
func (p *Program) UnmarshalJSON(data []byte) error {
	type rawProgram Program
	aux := rawProgram{MinFitScore: DefaultMinFitScore}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Program(aux)
	return nil
}

// NewProgram returns the program appended by the editor's add-program action.
func NewProgram() Program {
	return Program{
		ProgramName:           "New Program",
		ProgramCode:           "NEW",
		CreditTier:            "A",
		MinFitScore:           DefaultMinFitScore,
		EligibilityConditions: map[string]any{},
		Rules:                 []Rule{},
	}
}

// Lender field names accepted by SetField.
const (
	LenderFieldName               = "name"
	LenderFieldDescription        = "description"
	LenderFieldMinLoanAmount      = "min_loan_amount"
	LenderFieldMaxLoanAmount      = "max_loan_amount"
	LenderFieldExcludedStates     = "excluded_states"
	LenderFieldExcludedIndustries = "excluded_industries"
)

// SetField replaces one lender field. Values are not validated.
func (l *Lender) SetField(field string, value any) error {
	var err error
	switch field {
	case LenderFieldName:
		l.Name, err = asString(field, value)
	case LenderFieldDescription:
		l.Description, err = asString(field, value)
	case LenderFieldMinLoanAmount:
		l.MinLoanAmount, err = asFloat(field, value)
	case LenderFieldMaxLoanAmount:
		l.MaxLoanAmount, err = asFloat(field, value)
	case LenderFieldExcludedStates:
		l.ExcludedStates, err = asStrings(field, value)
	case LenderFieldExcludedIndustries:
		l.ExcludedIndustries, err = asStrings(field, value)
	default:
		return fmt.Errorf("%w: lender.%s", ErrUnknownField, field)
	}
	return err
}

// Program field names accepted by SetField.
const (
	ProgramFieldName                  = "program_name"
	ProgramFieldCode                  = "program_code"
	ProgramFieldCreditTier            = "credit_tier"
	ProgramFieldMinFitScore           = "min_fit_score"
	ProgramFieldDescription           = "description"
	ProgramFieldEligibilityConditions = "eligibility_conditions"
	ProgramFieldRateMetadata          = "rate_metadata"
)

// SetField replaces one program field. Rules are edited through the rule operations.
func (p *Program) SetField(field string, value any) error {
	var err error
	switch field {
	case ProgramFieldName:
		p.ProgramName, err = asString(field, value)
	case ProgramFieldCode:
		p.ProgramCode, err = asString(field, value)
	case ProgramFieldCreditTier:
		p.CreditTier, err = asString(field, value)
	case ProgramFieldMinFitScore:
		p.MinFitScore, err = asFloat(field, value)
	case ProgramFieldDescription:
		p.Description, err = asString(field, value)
	case ProgramFieldEligibilityConditions:
		p.EligibilityConditions, err = asObject(field, value)
	case ProgramFieldRateMetadata:
		p.RateMetadata, err = asRateMetadata(field, value)
	default:
		return fmt.Errorf("%w: program.%s", ErrUnknownField, field)
	}
	return err
}

// AddExcludedState appends a two-letter state code, ignoring duplicates.
func (l *Lender) AddExcludedState(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return fmt.Errorf("%w: state code %q", ErrInvalidFieldValue, code)
	}
	l.ExcludedStates = appendUnique(l.ExcludedStates, code)
	return nil
}

// RemoveExcludedState drops a state code if present.
func (l *Lender) RemoveExcludedState(code string) {
	l.ExcludedStates = removeValue(l.ExcludedStates, strings.ToUpper(strings.TrimSpace(code)))
}

// AddExcludedIndustry appends an industry name, ignoring duplicates.
func (l *Lender) AddExcludedIndustry(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: industry name is empty", ErrInvalidFieldValue)
	}
	l.ExcludedIndustries = appendUnique(l.ExcludedIndustries, name)
	return nil
}

// RemoveExcludedIndustry drops an industry if present.
func (l *Lender) RemoveExcludedIndustry(name string) {
	l.ExcludedIndustries = removeValue(l.ExcludedIndustries, strings.TrimSpace(name))
}

// Clone returns a deep copy of the lender.
func (l Lender) Clone() Lender {
	out := l
	out.ExcludedStates = cloneStrings(l.ExcludedStates)
	out.ExcludedIndustries = cloneStrings(l.ExcludedIndustries)
	return out
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	out.Criteria = CloneObject(r.Criteria)
	return out
}

// Clone returns a deep copy of the program including its rules.
func (p Program) Clone() Program {
	out := p
	out.EligibilityConditions = CloneObject(p.EligibilityConditions)
	if p.RateMetadata != nil {
		out.RateMetadata = p.RateMetadata.clone()
	}
	if p.Rules != nil {
		out.Rules = make([]Rule, len(p.Rules))
		for i, r := range p.Rules {
			out.Rules[i] = r.Clone()
		}
	}
	return out
}

// CloneObject deep-copies a free-form JSON object.
func CloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}

// cloneSlice keeps nil and empty distinct; the extraction service rejects null lists.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cloneStrings(s []string) []string {
	return cloneSlice(s)
}

func (rm *RateMetadata) clone() *RateMetadata {
	if rm == nil {
		return nil
	}
	return &RateMetadata{
		BaseRates:   cloneSlice(rm.BaseRates),
		Adjustments: cloneSlice(rm.Adjustments),
	}
}

// Normalize replaces nil lists and objects with empty ones so the program
// encodes without nulls.
func (p *Program) Normalize() {
	if p.EligibilityConditions == nil {
		p.EligibilityConditions = map[string]any{}
	}
	if p.RateMetadata != nil {
		if p.RateMetadata.BaseRates == nil {
			p.RateMetadata.BaseRates = []RateTable{}
		}
		if p.RateMetadata.Adjustments == nil {
			p.RateMetadata.Adjustments = []RateAdjustment{}
		}
	}
	if p.Rules == nil {
		p.Rules = []Rule{}
	}
	for i := range p.Rules {
		if p.Rules[i].Criteria == nil {
			p.Rules[i].Criteria = map[string]any{}
		}
	}
}

// Normalize replaces nil exclusion lists with empty ones.
func (l *Lender) Normalize() {
	if l.ExcludedStates == nil {
		l.ExcludedStates = []string{}
	}
	if l.ExcludedIndustries == nil {
		l.ExcludedIndustries = []string{}
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func removeValue(list []string, value string) []string {
	out := list[:0:0]
	for _, existing := range list {
		if existing != value {
			out = append(out, existing)
		}
	}
	return out
}

func asString(field string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s expects text, got %T", ErrInvalidFieldValue, field, value)
	}
}

func asFloat(field string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, err)
		}
		return f, nil
	case nil:
		// cleared input
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidFieldValue, field, value)
	}
}

func asStrings(field string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return cloneStrings(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a list of text, got %T", ErrInvalidFieldValue, field, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidFieldValue, field, value)
	}
}

func asObject(field string, value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return CloneObject(v), nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("%w: %s expects an object, got %T", ErrInvalidFieldValue, field, value)
	}
}

func asRateMetadata(field string, value any) (*RateMetadata, error) {
	switch v := value.(type) {
	case *RateMetadata:
		if v == nil {
			return nil, nil
		}
		return v.clone(), nil
	case RateMetadata:
		return asRateMetadata(field, &v)
	case nil:
		return nil, nil
	default:
		// decoded JSON from the review API
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, err)
		}
		var rm RateMetadata
		if err := json.Unmarshal(b, &rm); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, field, err)
		}
		return rm.clone(), nil
	}
}
