package filter

import (
	"strings"
)

// whereBuilder accumulates parameterized WHERE clauses.
type whereBuilder struct {
	clauses []string
	args    []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{
		clauses: []string{},
		args:    []any{},
	}
}

// addClause appends a condition with its arguments.
func (wb *whereBuilder) addClause(clause string, args ...any) *whereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// addIn appends "column IN (?, ?, ...)". An empty list is skipped.
func (wb *whereBuilder) addIn(column string, values []string) *whereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		wb.args = append(wb.args, v)
	}
	wb.clauses = append(wb.clauses, column+" IN ("+strings.Join(placeholders, ", ")+")")
	return wb
}

// clone copies the builder so callers can extend it without aliasing.
func (wb *whereBuilder) clone() *whereBuilder {
	return &whereBuilder{
		clauses: append([]string{}, wb.clauses...),
		args:    append([]any{}, wb.args...),
	}
}

// build returns the joined condition and its arguments. An empty builder
// yields "1=1" so it can always follow WHERE.
func (wb *whereBuilder) build() (string, []any) {
	if len(wb.clauses) == 0 {
		return "1=1", []any{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// escapeLike escapes LIKE metacharacters for use with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
