package pagination

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the uniform list-contract parameters: offset/limit
// pagination, ordering fields and the anonymization flag.
type Params struct {
	Limit      int
	Offset     int
	Ordering   []OrderField
	Anonymized bool
}

// OrderField is one ordering term, already normalized to snake_case.
type OrderField struct {
	Field      string
	Descending bool
}

// FromContext extracts list parameters from the echo context. The
// anonymized flag defaults to true; de-anonymized reads are permission
// gated at the handler.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	anonymized := true
	if raw := c.QueryParam("anonymized"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			anonymized = v
		}
	}

	return Params{
		Limit:      limit,
		Offset:     offset,
		Ordering:   ParseOrdering(c.QueryParam("ordering")),
		Anonymized: anonymized,
	}
}

// ParseOrdering splits a comma-separated ordering expression. A leading
// "-" marks a descending term; field names in camelCase are normalized
// to snake_case.
func ParseOrdering(raw string) []OrderField {
	if raw == "" {
		return nil
	}
	var fields []OrderField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(part, "-") {
			desc = true
			part = part[1:]
		}
		if part == "" {
			continue
		}
		fields = append(fields, OrderField{Field: SnakeCase(part), Descending: desc})
	}
	return fields
}

// SnakeCase normalizes camelCase field names to snake_case. Names that
// already contain underscores pass through lowered.
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// OrderSQL renders the ordering terms as an ORDER BY clause, keeping
// only fields present in the allowed set. Returns fallback when nothing
// survives the filter.
func (p Params) OrderSQL(allowed map[string]bool, fallback string) string {
	var terms []string
	for _, f := range p.Ordering {
		if !allowed[f.Field] {
			continue
		}
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		terms = append(terms, f.Field+" "+dir)
	}
	if len(terms) == 0 {
		return fallback
	}
	return strings.Join(terms, ", ")
}

// Response is the uniform list envelope: {count, items}.
type Response struct {
	Count int         `json:"count"`
	Items interface{} `json:"items"`
}

func NewResponse(items interface{}, count int) *Response {
	return &Response{Count: count, Items: items}
}
