package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Custom expression functions available to every derivation
var exprFunctions = []expr.Option{
	expr.Function("num", func(params ...any) (any, error) {
		return toNumber(params[0]), nil
	}),
	expr.Function("entries", func(params ...any) (any, error) {
		switch v := params[0].(type) {
		case []any:
			return v, nil
		case []map[string]any:
			return deepCopy(v), nil
		default:
			return []any{}, nil
		}
	}),
	expr.Function("total", func(params ...any) (any, error) {
		list, _ := params[0].([]any)
		sum := 0.0
		for _, v := range list {
			sum += toNumber(v)
		}
		return sum, nil
	}),
}

// Derivation recomputes Field from an expression over the record, e.g.
// total = subtotal - num(discountAmount).
type Derivation struct {
	Field      string `yaml:"field" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

type compiledDerivation struct {
	Derivation
	program *vm.Program
}

// Deriver evaluates derivations in declaration order; later derivations see
// the results of earlier ones.
type Deriver struct {
	derivations []compiledDerivation
}

// CompileDerivations compiles every expression up front.
func CompileDerivations(derivations []Derivation) (*Deriver, error) {
	d := &Deriver{}
	for _, derivation := range derivations {
		program, err := compileExpression(derivation.Expression)
		if err != nil {
			return nil, fmt.Errorf("derivation %s: %w", derivation.Field, err)
		}
		d.derivations = append(d.derivations, compiledDerivation{Derivation: derivation, program: program})
	}
	return d, nil
}

// Apply returns a copy of record with every derived field recomputed. A
// failing derivation is skipped and reported; the others still run.
func (d *Deriver) Apply(record Record) (Record, []error) {
	if d == nil || len(d.derivations) == 0 {
		return record, nil
	}

	out := record.Clone()
	var errs []error
	for _, derivation := range d.derivations {
		value, err := expr.Run(derivation.program, map[string]any(out))
		if err != nil {
			errs = append(errs, fmt.Errorf("derivation %s: %w", derivation.Field, err))
			continue
		}
		out[derivation.Field] = value
	}
	return out, errs
}

func compileExpression(expression string) (*vm.Program, error) {
	opts := []expr.Option{
		expr.AllowUndefinedVariables(), // Missing fields evaluate to nil instead of failing
	}
	opts = append(opts, exprFunctions...)
	return expr.Compile(expression, opts...)
}

// toNumber reads form values leniently: numeric strings (with either decimal
// separator) convert, anything else counts as zero.
func toNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}
