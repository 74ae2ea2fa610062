package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomAttribute_Simple(t *testing.T) {
	attr, err := ParseCustomAttribute("foo=bar")
	require.NoError(t, err)
	assert.Equal(t, "foo", attr.Name)
	assert.Equal(t, "bar", attr.Expression)
}

func TestParseCustomAttribute_ExpressionWithEquals(t *testing.T) {
	// Expression contains '=' characters
	attr, err := ParseCustomAttribute(`check=label=="frame"`)
	require.NoError(t, err)
	assert.Equal(t, "check", attr.Name)
	assert.Equal(t, `label=="frame"`, attr.Expression)
}

func TestParseCustomAttribute_Whitespace(t *testing.T) {
	attr, err := ParseCustomAttribute("  name  =  value  ")
	require.NoError(t, err)
	assert.Equal(t, "name", attr.Name)
	assert.Equal(t, "value", attr.Expression)
}

func TestParseCustomAttribute_DottedName(t *testing.T) {
	attr, err := ParseCustomAttribute("extra.attribute.name=duration_ns")
	require.NoError(t, err)
	assert.Equal(t, "extra.attribute.name", attr.Name)
}

func TestParseCustomAttribute_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no equals", input: "invalid_no_equals"},
		{name: "empty name", input: "=value"},
		{name: "empty expression", input: "name="},
		{name: "only whitespace name", input: "  =value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCustomAttribute(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "name=expression")
		})
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	// t.Setenv registers restoration; the vars must be absent, not empty,
	// for envDefault to apply.
	t.Setenv("TRACECAP_INPUT", "x")
	t.Setenv("TRACECAP_FILTER", "x")
	require.NoError(t, os.Unsetenv("TRACECAP_INPUT"))
	require.NoError(t, os.Unsetenv("TRACECAP_FILTER"))

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "-", cfg.Input, "stdin by default")
	assert.Empty(t, cfg.Filter)
	assert.Empty(t, cfg.CustomAttributes)
}

func TestFromEnv_Values(t *testing.T) {
	t.Setenv("TRACECAP_INPUT", "/tmp/capture.bin")
	t.Setenv("TRACECAP_FILTER", `type == "core-activity"`)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/capture.bin", cfg.Input)
	assert.Equal(t, `type == "core-activity"`, cfg.Filter)
}

func TestAddCustomAttributes(t *testing.T) {
	cfg := &Config{}
	err := cfg.AddCustomAttributes([]string{"a=1", "b=duration_ns > 100"})
	require.NoError(t, err)

	require.Len(t, cfg.CustomAttributes, 2)
	assert.Equal(t, "a", cfg.CustomAttributes[0].Name)
	assert.Equal(t, "1", cfg.CustomAttributes[0].Expression)
	assert.Equal(t, "b", cfg.CustomAttributes[1].Name)
	assert.Equal(t, "duration_ns > 100", cfg.CustomAttributes[1].Expression)
}

func TestAddCustomAttributes_InvalidEntry(t *testing.T) {
	cfg := &Config{}
	err := cfg.AddCustomAttributes([]string{"a=1", "broken"})
	require.Error(t, err)
}
