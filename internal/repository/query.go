package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// Filter is a column to value mapping joined with AND. A nil value,
// including a typed nil pointer, matches with IS NULL.
type Filter map[string]any

// Fields is an ordered column to value list for inserts and updates.
type Fields []Field

type Field struct {
	Column string
	Value  any
}

func isNull(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case *int64:
		return v == nil
	case *string:
		return v == nil
	}
	return false
}

func quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// where renders the filter with placeholders numbered after the args
// already collected. Columns are emitted in sorted order.
func (f Filter) where(args []any) (string, []any) {
	if len(f) == 0 {
		return "", args
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		v := f[k]
		if isNull(v) {
			clauses = append(clauses, quote(k)+" IS NULL")
			continue
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", quote(k), len(args)))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildSelect(table string, filter Filter, columns []string, sortBy []string, limit int) (string, []any) {
	cols := "*"
	if len(columns) > 0 {
		cols = quoteAll(columns)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quote(table))

	where, args := filter.where(nil)
	b.WriteString(where)

	if len(sortBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(sortBy, ", "))
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}

	return b.String(), args
}

func buildInsert(table string, fields Fields) (string, []any) {
	cols := make([]string, len(fields))
	placeholders := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = quote(f.Column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = f.Value
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quote(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args
}

func buildUpdate(table string, fields Fields, filter Filter) (string, []any) {
	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+len(filter))
	for i, f := range fields {
		args = append(args, f.Value)
		sets[i] = fmt.Sprintf("%s = $%d", quote(f.Column), len(args))
	}

	where, args := filter.where(args)
	return fmt.Sprintf("UPDATE %s SET %s%s", quote(table), strings.Join(sets, ", "), where), args
}

func buildDelete(table string, filter Filter) (string, []any) {
	where, args := filter.where(nil)
	return fmt.Sprintf("DELETE FROM %s%s", quote(table), where), args
}
