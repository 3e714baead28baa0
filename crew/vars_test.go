package crew

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/crewline/types"
)

func TestSubstitute_ReplacesAllPlaceholders(t *testing.T) {
	inputs := map[string]string{"stock": "RELIANCE", "period": "Q2"}

	out, err := Substitute("Analyze {{stock}} results for {{period}}, then rank {{stock}}.", "analysis", inputs)
	require.NoError(t, err)
	assert.Equal(t, "Analyze RELIANCE results for Q2, then rank RELIANCE.", out)
}

func TestSubstitute_WhitespaceInsidePlaceholder(t *testing.T) {
	out, err := Substitute("Report on {{ stock }} and {{	stock	}}.", "report", map[string]string{"stock": "TCS"})
	require.NoError(t, err)
	assert.Equal(t, "Report on TCS and TCS.", out)
}

func TestSubstitute_NoPlaceholders(t *testing.T) {
	out, err := Substitute("A fixed description.", "fixed", nil)
	require.NoError(t, err)
	assert.Equal(t, "A fixed description.", out)
}

func TestSubstitute_MissingVariableIsFatal(t *testing.T) {
	_, err := Substitute("Analyze {{stock}} against {{benchmark}}.", "analysis", map[string]string{"stock": "RELIANCE"})
	require.Error(t, err)
	assert.True(t, types.IsMissingVariable(err))

	var terr *types.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "benchmark", terr.Variable)
	assert.Equal(t, "analysis", terr.Task)
}

func TestSubstitute_EmptyValueIsABinding(t *testing.T) {
	out, err := Substitute("Prefix {{v}} suffix", "t", map[string]string{"v": ""})
	require.NoError(t, err)
	assert.Equal(t, "Prefix  suffix", out)
}

func TestExtractVariables(t *testing.T) {
	names := ExtractVariables("{{stock}} vs {{benchmark}} for {{stock}} in {{ period }}")
	assert.Equal(t, []string{"stock", "benchmark", "period"}, names)

	assert.Nil(t, ExtractVariables("no placeholders here"))
}

func TestSubstitute_IdempotentForBraceFreeValues(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("substituting twice equals substituting once", prop.ForAll(
		func(name, value, prefix, suffix string) bool {
			template := prefix + "{{" + name + "}}" + suffix
			inputs := map[string]string{name: value}

			once, err := Substitute(template, "prop", inputs)
			if err != nil {
				return false
			}
			twice, err := Substitute(once, "prop", inputs)
			if err != nil {
				return false
			}
			return once == twice
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("every extracted variable gets replaced", prop.ForAll(
		func(name, value string) bool {
			template := "start {{" + name + "}} end"
			out, err := Substitute(template, "prop", map[string]string{name: value})
			if err != nil {
				return false
			}
			return len(ExtractVariables(out)) == 0
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
