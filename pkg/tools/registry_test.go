package tools_test

import (
	"context"
	"testing"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := tools.NewRegistry(tools.NewCalculator(), tools.NewSearch("k", tools.GPSearchProfile))

	assert.Equal(t, []string{"calculator", "search"}, reg.Names())
	specs := reg.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "calculator", specs[0].Name)
	assert.Contains(t, specs[1].Description, "nhs.uk")

	out, err := reg.Invoke(context.Background(), "calculator", map[string]any{"expression": "2+2"})
	require.NoError(t, err)
	assert.Equal(t, "4", out)

	_, err = reg.Invoke(context.Background(), "weather", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownTool)
}
