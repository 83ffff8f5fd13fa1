package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// criteriaSchema is the shape every committed rule criteria must satisfy.
var criteriaSchema = jsonschema.MustCompileString("criteria.json", `{
	"type": "object",
	"minProperties": 1,
	"propertyNames": {"minLength": 1}
}`)

// ParseCriteria parses the structured-text form of a rule's criteria.
// JSON is accepted as is; YAML mappings are accepted as a convenience.
// The result always holds JSON-compatible values (numbers are float64).
func ParseCriteria(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: input is empty", ErrCriteriaNotObject)
	}

	var raw any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse criteria: %w", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrCriteriaNotObject, describeValue(raw))
	}

	normalized, err := normalizeObject(obj)
	if err != nil {
		return nil, fmt.Errorf("parse criteria: %w", err)
	}
	return normalized, nil
}

// FormatCriteria renders criteria as indented JSON for editing.
func FormatCriteria(criteria map[string]any) string {
	if criteria == nil {
		criteria = map[string]any{}
	}
	b, err := json.MarshalIndent(criteria, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ValidateCriteria checks that criteria is a non-empty key/value object.
func ValidateCriteria(criteria map[string]any) error {
	var doc any
	if criteria != nil {
		normalized, err := normalizeObject(criteria)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCriteriaNotObject, err)
		}
		doc = normalized
	}
	if err := criteriaSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCriteriaEmpty, err)
	}
	return nil
}

// normalizeObject round-trips through JSON so values match what the
// extraction service would send back.
func normalizeObject(obj map[string]any) (map[string]any, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "a list"
	case string:
		return "text"
	case bool:
		return "a boolean"
	case int, int64, float64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
