package session

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/TimelyDataflow/diagnostics/internal/arrange"
)

// celFilter wraps a compiled CEL program evaluated against each emitted
// arrangement row. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("worker", cel.IntType),
		cel.Variable("count", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("addr", cel.ListType(cel.IntType)),
		cel.Variable("elapsed_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a row. Evaluation errors
// count as non-matches.
func (f celFilter) Eval(row arrange.Row) bool {
	if !f.enabled {
		return true
	}
	addr := make([]int64, len(row.Addr))
	for i, e := range row.Addr {
		addr[i] = int64(e)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"worker":     int64(row.Worker),
		"count":      row.Count,
		"name":       row.Name,
		"addr":       addr,
		"elapsed_ms": row.Elapsed.Milliseconds(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
