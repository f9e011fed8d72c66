package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChain bounds the unwrap walk for error trees built with errors.Join.
const maxChain = 16

// LogFields flattens err for a structured log line. Postgres diagnostics are added
// when the chain holds a pgx or lib/pq error. Empty fields are omitted.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
		fields["retryable"] = MetadataFor(typed.Code()).Retryable
	}
	if chain := unwrapChain(err); len(chain) > 1 {
		fields["error_chain"] = chain
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		putPG(fields, pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail)
	case stdErrors.As(err, &pqErr):
		putPG(fields, string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail)
	}
	return fields
}

func putPG(fields map[string]any, code, constraint, table, column, detail string) {
	for k, v := range map[string]string{
		"pg_code":       code,
		"pg_constraint": constraint,
		"pg_table":      table,
		"pg_column":     column,
		"pg_detail":     detail,
	} {
		if v != "" {
			fields[k] = v
		}
	}
}

// unwrapChain lists the errors under err depth first, following both single and
// multi-error Unwrap.
func unwrapChain(err error) []string {
	var chain []string
	stack := []error{err}
	for len(stack) > 0 && len(chain) < maxChain {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				stack = append(stack, next)
			}
		case interface{ Unwrap() []error }:
			next := u.Unwrap()
			for i := len(next) - 1; i >= 0; i-- {
				if next[i] != nil {
					stack = append(stack, next[i])
				}
			}
		}
	}
	return chain
}
