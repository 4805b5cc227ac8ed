// Package rules implements the cohort rule engine: a serializable
// boolean tree of filters over the case entity graph that compiles to
// a SQL predicate on patient_case rows.
package rules

import (
	"encoding/json"
	"fmt"
)

// MaxDepth bounds rule tree nesting.
const MaxDepth = 32

// ConfigError marks a structurally invalid rule tree: unknown entity,
// field or operator, or excessive nesting.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// ValidationError marks a rule whose value does not match the
// operator's expected type.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Operator names form a closed set. Negation has no tree node; it is
// expressed through operator complements.
const (
	OpExact        = "exact"
	OpIExact       = "iexact"
	OpContains     = "contains"
	OpIContains    = "icontains"
	OpStartsWith   = "startswith"
	OpEndsWith     = "endswith"
	OpLt           = "lt"
	OpLte          = "lte"
	OpGt           = "gt"
	OpGte          = "gte"
	OpIn           = "in"
	OpNotIn        = "notin"
	OpOverlaps     = "overlaps"
	OpIsNull       = "isnull"
	OpNotNull      = "notnull"
	OpConceptIs    = "conceptis"
	OpDescendantOf = "descendantof"
	OpEnumIn       = "enumin"
)

// Conditions for group rules.
const (
	ConditionAnd = "AND"
	ConditionOr  = "OR"
)

// Rule is either a group (Condition + Rules) or a leaf
// (Entity + Field + Operator + Value). Value stays raw so that
// serialization round-trips byte-for-byte.
type Rule struct {
	Condition string          `json:"condition,omitempty"`
	Rules     []Rule          `json:"rules,omitempty"`
	Entity    string          `json:"entity,omitempty"`
	Field     string          `json:"field,omitempty"`
	Operator  string          `json:"operator,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// IsGroup reports whether the rule is a boolean group node.
func (r Rule) IsGroup() bool { return r.Condition != "" }

// Parse decodes a rule tree and validates it against the entity
// registry.
func Parse(data []byte) (Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return Rule{}, validationErrorf("malformed rule tree: %v", err)
	}
	if err := Validate(r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks structure, entity/field/operator membership and
// value types without touching the database.
func Validate(r Rule) error {
	return validate(r, 1)
}

func validate(r Rule, depth int) error {
	if depth > MaxDepth {
		return configErrorf("rule tree nesting exceeds %d levels", MaxDepth)
	}
	if r.IsGroup() {
		if r.Condition != ConditionAnd && r.Condition != ConditionOr {
			return configErrorf("unknown group condition %q", r.Condition)
		}
		if len(r.Rules) == 0 {
			return configErrorf("group rule has no children")
		}
		if r.Entity != "" || r.Operator != "" {
			return configErrorf("group rule carries leaf attributes")
		}
		for _, child := range r.Rules {
			if err := validate(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	entity, ok := Entities[r.Entity]
	if !ok {
		return configErrorf("unknown entity %q", r.Entity)
	}
	field, ok := entity.Fields[r.Field]
	if !ok {
		return configErrorf("unknown field %q on entity %q", r.Field, r.Entity)
	}
	spec, ok := operators[r.Operator]
	if !ok {
		return configErrorf("unknown operator %q", r.Operator)
	}
	if !spec.supports(field.Kind) {
		return configErrorf("operator %q does not apply to field %q", r.Operator, r.Field)
	}
	if _, err := spec.decode(r); err != nil {
		return err
	}
	return nil
}
