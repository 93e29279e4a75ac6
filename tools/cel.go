package tools

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// celCostLimit bounds evaluation work so a hostile expression cannot spin.
const celCostLimit = 1_000_000

// evalCEL compiles and evaluates a CEL program with the given variable bindings.
// CEL has no I/O or host access, which is what makes it safe to expose to the model.
func evalCEL(ctx context.Context, program string, bindings map[string]interface{}) (interface{}, error) {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create environment")
	}

	ast, iss := env.Compile(program)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}

	prg, err := env.Program(ast,
		cel.CostLimit(celCostLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, err
	}

	if bindings == nil {
		bindings = map[string]interface{}{}
	}
	out, _, err := prg.ContextEval(ctx, bindings)
	if err != nil {
		return nil, err
	}
	return nativeValue(out)
}

// nativeValue converts a CEL value into something encoding/json can render.
func nativeValue(v ref.Val) (interface{}, error) {
	switch val := v.Value().(type) {
	case int64, uint64, float64, bool, string:
		return val, nil
	}

	native, err := v.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return fmt.Sprint(v.Value()), nil
	}
	pv, ok := native.(*structpb.Value)
	if !ok {
		return fmt.Sprint(v.Value()), nil
	}
	return pv.AsInterface(), nil
}

// maxExactInt is the largest magnitude a float64 holds without losing integers.
const maxExactInt = 1 << 53

// evalArithmetic evaluates an arithmetic expression with real-number
// semantics: every whole-number literal is read as a double, so 7/2 is 3.5
// and 3 * 1.5 mixes freely. Whole-valued results come back as int64.
// Integer-only operators such as % fall back to the expression as written.
func evalArithmetic(ctx context.Context, expression string) (interface{}, error) {
	value, err := evalCEL(ctx, floatLiterals(expression), nil)
	if err != nil {
		asWritten, retryErr := evalCEL(ctx, expression, nil)
		if retryErr != nil {
			return nil, retryErr
		}
		value = asWritten
	}
	f, ok := value.(float64)
	if !ok {
		return value, nil
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, errors.New("division by zero")
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
		return int64(f), nil
	}
	return f, nil
}

// floatLiterals appends ".0" to decimal integer literals outside string
// literals. Hex, unsigned, exponent and fractional literals are left alone.
func floatLiterals(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 8)

	var quote byte
	for i := 0; i < len(expr); {
		c := expr[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(expr) {
				b.WriteByte(expr[i+1])
				i += 2
				continue
			}
			if c == quote {
				quote = 0
			}
			i++
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			b.WriteByte(c)
			i++
			continue
		}

		if isDigit(c) && (i == 0 || !isWordByte(expr[i-1]) && expr[i-1] != '.') {
			j := i
			for j < len(expr) && (isWordByte(expr[j]) || expr[j] == '.') {
				j++
			}
			// signed exponent: 1e-3
			if j < len(expr) && (expr[j] == '+' || expr[j] == '-') && (expr[j-1] == 'e' || expr[j-1] == 'E') {
				j++
				for j < len(expr) && isDigit(expr[j]) {
					j++
				}
			}
			lit := expr[i:j]
			b.WriteString(lit)
			if isDecimalInt(lit) {
				b.WriteString(".0")
			}
			i = j
			continue
		}

		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDecimalInt(lit string) bool {
	for i := 0; i < len(lit); i++ {
		if !isDigit(lit[i]) {
			return false
		}
	}
	return true
}
