package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CaseAlias is the alias the compiled predicate expects for the
// patient_case row under evaluation.
const CaseAlias = "pc"

// Compile turns a validated rule tree into a SQL predicate over a
// patient_case row aliased as pc. Placeholders start at $1.
func Compile(rule Rule) (string, []any, error) {
	return CompileOffset(rule, 1)
}

// CompileOffset compiles with placeholders starting at $start, so the
// predicate can be embedded in a statement that already carries
// arguments.
func CompileOffset(rule Rule, start int) (string, []any, error) {
	c := &compiler{next: start}
	sql, err := c.compile(rule, 1)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

type compiler struct {
	next int
	args []any
}

func (c *compiler) placeholder(value any) string {
	c.args = append(c.args, value)
	p := fmt.Sprintf("$%d", c.next)
	c.next++
	return p
}

func (c *compiler) compile(rule Rule, depth int) (string, error) {
	if depth > MaxDepth {
		return "", configErrorf("rule tree nesting exceeds %d levels", MaxDepth)
	}
	if rule.IsGroup() {
		return c.compileGroup(rule, depth)
	}
	return c.compileLeaf(rule)
}

func (c *compiler) compileGroup(rule Rule, depth int) (string, error) {
	var joiner string
	switch rule.Condition {
	case ConditionAnd:
		joiner = " AND "
	case ConditionOr:
		joiner = " OR "
	default:
		return "", configErrorf("unknown group condition %q", rule.Condition)
	}
	if len(rule.Rules) == 0 {
		return "", configErrorf("group rule has no children")
	}
	parts := make([]string, 0, len(rule.Rules))
	for _, child := range rule.Rules {
		part, err := c.compile(child, depth+1)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func (c *compiler) compileLeaf(rule Rule) (string, error) {
	entity, ok := Entities[rule.Entity]
	if !ok {
		return "", configErrorf("unknown entity %q", rule.Entity)
	}
	field, ok := entity.Fields[rule.Field]
	if !ok {
		return "", configErrorf("unknown field %q on entity %q", rule.Field, rule.Entity)
	}
	spec, ok := operators[rule.Operator]
	if !ok {
		return "", configErrorf("unknown operator %q", rule.Operator)
	}
	if !spec.supports(field.Kind) {
		return "", configErrorf("operator %q does not apply to field %q", rule.Operator, rule.Field)
	}
	value, err := spec.decode(rule)
	if err != nil {
		return "", err
	}

	alias := CaseAlias
	if entity.CaseRef != "" {
		alias = "t"
	}
	predicate, err := spec.render(c, column(alias, field), field, value)
	if err != nil {
		return "", err
	}
	if entity.CaseRef == "" {
		return predicate, nil
	}
	ref := "t." + entity.CaseRef
	if strings.Contains(entity.CaseRef, "(") {
		ref = entity.CaseRef
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s t WHERE %s = %s.id AND %s)",
		entity.Table, ref, CaseAlias, predicate), nil
}

func column(alias string, f Field) string {
	return alias + "." + f.Column
}

// operator specs tie a name to value decoding and SQL rendering.
type operatorSpec struct {
	kinds  []FieldKind
	decode func(Rule) (any, error)
	render func(c *compiler, col string, f Field, value any) (string, error)
}

func (s operatorSpec) supports(k FieldKind) bool {
	for _, kind := range s.kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func decodeString(r Rule) (any, error) {
	var v string
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return nil, validationErrorf("operator %q expects a string value for field %q", r.Operator, r.Field)
	}
	return v, nil
}

func decodeScalar(r Rule) (any, error) {
	var v any
	if err := json.Unmarshal(r.Value, &v); err != nil || v == nil {
		return nil, validationErrorf("operator %q expects a scalar value for field %q", r.Operator, r.Field)
	}
	switch v.(type) {
	case string, float64, bool:
		return v, nil
	}
	return nil, validationErrorf("operator %q expects a scalar value for field %q", r.Operator, r.Field)
}

func decodeStringSlice(r Rule) (any, error) {
	var v []string
	if err := json.Unmarshal(r.Value, &v); err != nil || len(v) == 0 {
		return nil, validationErrorf("operator %q expects a non-empty array for field %q", r.Operator, r.Field)
	}
	return v, nil
}

func decodePair(r Rule) (any, error) {
	var v []string
	if err := json.Unmarshal(r.Value, &v); err != nil || len(v) != 2 {
		return nil, validationErrorf("operator %q expects a [start, end] pair for field %q", r.Operator, r.Field)
	}
	return v, nil
}

func decodeNone(r Rule) (any, error) {
	if len(r.Value) > 0 && string(r.Value) != "null" {
		return nil, validationErrorf("operator %q takes no value", r.Operator)
	}
	return nil, nil
}

func renderCompare(op string) func(*compiler, string, Field, any) (string, error) {
	return func(c *compiler, col string, f Field, value any) (string, error) {
		return fmt.Sprintf("%s %s %s", col, op, c.placeholder(value)), nil
	}
}

func renderMembership(cmp string) func(*compiler, string, Field, any) (string, error) {
	return func(c *compiler, col string, f Field, value any) (string, error) {
		if f.Kind == KindTextArray {
			if cmp == "=" {
				return fmt.Sprintf("%s && %s", col, c.placeholder(value)), nil
			}
			return fmt.Sprintf("NOT (%s && %s)", col, c.placeholder(value)), nil
		}
		if cmp == "=" {
			return fmt.Sprintf("%s = ANY(%s)", col, c.placeholder(value)), nil
		}
		return fmt.Sprintf("%s <> ALL(%s)", col, c.placeholder(value)), nil
	}
}

// descendantSubquery selects the codes of a concept and all of its
// transitive children.
const descendantSubquery = `WITH RECURSIVE sub AS (
SELECT cc.id, cc.code FROM coded_concept cc WHERE cc.code = %s
UNION ALL
SELECT cc.id, cc.code FROM coded_concept cc JOIN sub s ON cc.parent_id = s.id
) SELECT s.code FROM sub s`

var textKinds = []FieldKind{KindText, KindConcept, KindEnum}
var orderedKinds = []FieldKind{KindNumeric, KindDate}
var allKinds = []FieldKind{KindText, KindNumeric, KindDate, KindPeriod, KindBool, KindConcept, KindTextArray, KindEnum}

var operators = map[string]operatorSpec{
	OpExact: {
		kinds:  []FieldKind{KindText, KindConcept, KindEnum, KindNumeric, KindDate, KindBool, KindTextArray},
		decode: decodeScalar,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			if f.Kind == KindTextArray {
				return fmt.Sprintf("%s = ANY(%s)", c.placeholder(value), col), nil
			}
			return fmt.Sprintf("%s = %s", col, c.placeholder(value)), nil
		},
	},
	OpIExact: {
		kinds:  textKinds,
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, c.placeholder(value)), nil
		},
	},
	OpContains: {
		kinds:  []FieldKind{KindText},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("%s LIKE '%%' || %s || '%%'", col, c.placeholder(value)), nil
		},
	},
	OpIContains: {
		kinds:  []FieldKind{KindText},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", col, c.placeholder(value)), nil
		},
	},
	OpStartsWith: {
		kinds:  []FieldKind{KindText},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("%s LIKE %s || '%%'", col, c.placeholder(value)), nil
		},
	},
	OpEndsWith: {
		kinds:  []FieldKind{KindText},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("%s LIKE '%%' || %s", col, c.placeholder(value)), nil
		},
	},
	OpLt:  {kinds: orderedKinds, decode: decodeScalar, render: renderCompare("<")},
	OpLte: {kinds: orderedKinds, decode: decodeScalar, render: renderCompare("<=")},
	OpGt:  {kinds: orderedKinds, decode: decodeScalar, render: renderCompare(">")},
	OpGte: {kinds: orderedKinds, decode: decodeScalar, render: renderCompare(">=")},
	OpIn: {
		kinds:  []FieldKind{KindText, KindConcept, KindEnum, KindTextArray},
		decode: decodeStringSlice,
		render: renderMembership("="),
	},
	OpNotIn: {
		kinds:  []FieldKind{KindText, KindConcept, KindEnum, KindTextArray},
		decode: decodeStringSlice,
		render: renderMembership("<>"),
	},
	OpOverlaps: {
		kinds:  []FieldKind{KindPeriod},
		decode: decodePair,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			bounds := value.([]string)
			endCol := col[:strings.IndexByte(col, '.')+1] + f.EndColumn
			lo := c.placeholder(bounds[0])
			hi := c.placeholder(bounds[1])
			return fmt.Sprintf("%s <= %s::date AND COALESCE(%s, 'infinity'::date) >= %s::date",
				col, hi, endCol, lo), nil
		},
	},
	OpIsNull: {
		kinds:  allKinds,
		decode: decodeNone,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return col + " IS NULL", nil
		},
	},
	OpNotNull: {
		kinds:  allKinds,
		decode: decodeNone,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return col + " IS NOT NULL", nil
		},
	},
	OpConceptIs: {
		kinds:  []FieldKind{KindConcept, KindTextArray},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			if f.Kind == KindTextArray {
				return fmt.Sprintf("%s = ANY(%s)", c.placeholder(value), col), nil
			}
			return fmt.Sprintf("%s = %s", col, c.placeholder(value)), nil
		},
	},
	OpDescendantOf: {
		kinds:  []FieldKind{KindConcept, KindTextArray},
		decode: decodeString,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			sub := fmt.Sprintf(descendantSubquery, c.placeholder(value))
			if f.Kind == KindTextArray {
				return fmt.Sprintf("%s && ARRAY(%s)", col, sub), nil
			}
			return fmt.Sprintf("%s IN (%s)", col, sub), nil
		},
	},
	OpEnumIn: {
		kinds:  []FieldKind{KindEnum},
		decode: decodeStringSlice,
		render: func(c *compiler, col string, f Field, value any) (string, error) {
			return fmt.Sprintf("%s = ANY(%s)", col, c.placeholder(value)), nil
		},
	},
}
