package tools

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/triage/pkg/domain"
)

const maxExpressionLength = 256

// ErrUnsupportedExpression is returned for anything beyond arithmetic on numbers.
var ErrUnsupportedExpression = errors.New("unsupported expression")

// Calculator evaluates arithmetic expressions: numbers, parentheses, unary +/- and
// binary + - * / %. Nothing else is accepted, so no code is ever executed.
type Calculator struct{}

// NewCalculator creates the calculator tool.
func NewCalculator() *Calculator { return &Calculator{} }

func (Calculator) Spec() domain.Tool {
	return domain.Tool{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression, e.g. dosage or BMI maths: (70 / (1.75 * 1.75)).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic using numbers, + - * / %, and parentheses.",
				},
			},
			"required": []string{"expression"},
		},
	}
}

func (c Calculator) Call(_ context.Context, args map[string]any) (string, error) {
	expr, err := stringArg(args, "expression")
	if err != nil {
		return "", err
	}
	v, err := Evaluate(expr)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

// Evaluate computes an arithmetic expression.
func Evaluate(expr string) (float64, error) {
	if len(expr) > maxExpressionLength {
		return 0, fmt.Errorf("%w: longer than %d characters", ErrUnsupportedExpression, maxExpressionLength)
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedExpression, err)
	}
	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

func eval(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		return literal(n)

	case *ast.ParenExpr:
		return eval(n.X)

	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		}
		return 0, fmt.Errorf("%w: operator %s", ErrUnsupportedExpression, n.Op)

	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return math.Mod(x, y), nil
		}
		return 0, fmt.Errorf("%w: operator %s", ErrUnsupportedExpression, n.Op)
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedExpression, node)
}

// literal converts a number literal in any Go notation: 0x10, 0o17, 0b101, 1_000, 1e3.
func literal(n *ast.BasicLit) (float64, error) {
	switch n.Kind {
	case token.INT:
		if v, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return float64(v), nil
		}
		// Out of int64 range; decimal literals still fit a float.
		if v, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64); err == nil {
			return v, nil
		}
		return 0, fmt.Errorf("%w: literal %s out of range", ErrUnsupportedExpression, n.Value)
	case token.FLOAT:
		return strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
	}
	return 0, fmt.Errorf("%w: literal %s", ErrUnsupportedExpression, n.Value)
}
