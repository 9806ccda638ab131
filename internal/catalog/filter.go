package catalog

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/runger/singleselect/internal/item"
)

// ErrInvalidFilter is returned when a filter expression does not compile.
var ErrInvalidFilter = errors.New("catalog: invalid filter")

// Filter is a compiled boolean expression evaluated against each search
// result. Record fields are variables; `item` is the whole item and `name`
// its display name.
//
//	value > 10 && name startsWith "A"
type Filter struct {
	source  string
	program *vm.Program
}

// CompileFilter compiles source. Unknown variables evaluate to nil.
func CompileFilter(source string) (*Filter, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: expression must not be empty", ErrInvalidFilter)
	}
	program, err := expr.Compile(source,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Filter{source: source, program: program}, nil
}

// String returns the expression source.
func (f *Filter) String() string { return f.source }

// Match reports whether it passes the filter. Evaluation errors, such as
// comparing a missing field, count as a rejection.
func (f *Filter) Match(acc item.Accessor, it item.Item) bool {
	env := map[string]any{}
	if fields, ok := it.Any().(map[string]any); ok {
		for k, v := range fields {
			env[k] = v
		}
	}
	env["item"] = it.Any()
	env["name"] = acc.Name(it)

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
