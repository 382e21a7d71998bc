package tasks

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// ResultType discriminates the shapes a task result may take.
type ResultType string

const (
	// ResultText expects a free-form string. The default.
	ResultText ResultType = "text"
	// ResultLabels expects one of a fixed set of literal values. The
	// completion tool takes the zero-based index of the chosen label.
	ResultLabels ResultType = "labels"
	// ResultJSON expects a structured object with declared properties.
	ResultJSON ResultType = "json"
	// ResultNone expects no result at all. Completion is the outcome.
	ResultNone ResultType = "none"
)

// ResultSpec is the contract a successful result must satisfy. Exactly one
// variant is active, selected by Type.
type ResultSpec struct {
	Type ResultType
	// Labels holds the allowed values when Type is ResultLabels.
	Labels []string
	// Properties describes the expected object when Type is ResultJSON.
	Properties map[string]*schema.ParameterInfo
	// Validator runs after type validation. It may transform the value or
	// reject it; rejection fails the task with the validator's message.
	Validator func(any) (any, error)
}

// TextResult expects a free-form string result.
func TextResult() *ResultSpec {
	return &ResultSpec{Type: ResultText}
}

// LabelsResult expects one of the given values, chosen by index.
func LabelsResult(labels ...string) *ResultSpec {
	return &ResultSpec{Type: ResultLabels, Labels: labels}
}

// JSONResult expects an object with the given properties.
func JSONResult(props map[string]*schema.ParameterInfo) *ResultSpec {
	return &ResultSpec{Type: ResultJSON, Properties: props}
}

// NoResult expects no result value.
func NoResult() *ResultSpec {
	return &ResultSpec{Type: ResultNone}
}

// ParseResultType maps a definition string to a ResultType.
func ParseResultType(s string) (ResultType, error) {
	switch ResultType(s) {
	case ResultText, ResultLabels, ResultJSON, ResultNone:
		return ResultType(s), nil
	case "":
		return ResultText, nil
	default:
		return "", fmt.Errorf("unknown result type %q", s)
	}
}

func (s *ResultSpec) check() error {
	switch s.Type {
	case ResultText, ResultJSON, ResultNone:
		return nil
	case ResultLabels:
		if len(s.Labels) == 0 {
			return fmt.Errorf("labels result requires at least one label")
		}
		return nil
	default:
		return fmt.Errorf("unknown result type %q", s.Type)
	}
}

// validate checks raw against the active variant and returns the final
// result value. For labels the raw value is an index and the returned value
// is the label itself.
func (s *ResultSpec) validate(raw any) (any, error) {
	value, err := s.validateType(raw)
	if err != nil {
		return nil, err
	}
	if s.Validator != nil {
		value, err = s.Validator(value)
		if err != nil {
			return nil, fmt.Errorf("result rejected: %w", err)
		}
	}
	return value, nil
}

func (s *ResultSpec) validateType(raw any) (any, error) {
	switch s.Type {
	case ResultNone:
		if raw != nil {
			return nil, fmt.Errorf("task expects no result, got %v", raw)
		}
		return nil, nil

	case ResultText:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a text result, got %T", raw)
		}
		return str, nil

	case ResultLabels:
		idx, err := asIndex(raw)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(s.Labels) {
			return nil, fmt.Errorf("label index %d out of range [0, %d)", idx, len(s.Labels))
		}
		return s.Labels[idx], nil

	case ResultJSON:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object result, got %T", raw)
		}
		for name, p := range s.Properties {
			if _, present := obj[name]; !present && p != nil && p.Required {
				return nil, fmt.Errorf("missing required property %q", name)
			}
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("unknown result type %q", s.Type)
	}
}

// asIndex accepts the numeric encodings JSON decoding can produce.
func asIndex(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("label index must be an integer, got %v", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("label index must be an integer, got %T", raw)
	}
}
