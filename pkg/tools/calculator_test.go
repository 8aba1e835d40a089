package tools_test

import (
	"context"
	"testing"

	"github.com/aretw0/triage/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2", 3},
		{"2 * (3 + 4)", 14},
		{"-5 + 2", -3},
		{"+7", 7},
		{"10 / 4", 2.5},
		{"10 % 4", 2},
		{"70 / (1.75 * 1.75)", 70 / (1.75 * 1.75)},
		{"1e3 / 2", 500},
		{"0x10 + 1", 17},
		{"0o17", 15},
		{"0b101", 5},
		{"1_000 * 2", 2000},
		{"1_000.5", 1000.5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := tools.Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	for _, expr := range []string{
		`os.Exit(1)`,
		`__import__("os")`,
		`x + 1`,
		`"a" + "b"`,
		`2 ^ 3`,
		`[]int{1}`,
		`1 +`,
		`1 / 0`,
		`5 % 0`,
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := tools.Evaluate(expr)
			assert.Error(t, err)
		})
	}

	_, err := tools.Evaluate(`func() {}`)
	assert.ErrorIs(t, err, tools.ErrUnsupportedExpression)
}

func TestCalculator_Call(t *testing.T) {
	calc := tools.NewCalculator()

	out, err := calc.Call(context.Background(), map[string]any{"expression": "3 * 0.5"})
	require.NoError(t, err)
	assert.Equal(t, "1.5", out)

	_, err = calc.Call(context.Background(), map[string]any{})
	assert.Error(t, err)

	_, err = calc.Call(context.Background(), map[string]any{"expression": 42.0})
	assert.Error(t, err)
}
