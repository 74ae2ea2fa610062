// Package config holds the command-line and environment configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the resolved processing configuration.
type Config struct {
	// Input is the capture stream source: a file path, or "-" for stdin.
	Input string
	// Quiet disables the text formatter.
	Quiet bool
	// Filter is an optional expression gating which timers reach the
	// exporters. Empty means all timers pass.
	Filter string
	// CustomAttributes are name=expression pairs evaluated per timer and
	// attached to exported spans.
	CustomAttributes []CustomAttribute
	// ExportSpans enables the OTLP span exporter.
	ExportSpans bool
}

// CustomAttribute is one user-defined span attribute: evaluated Expression,
// attached under Name.
type CustomAttribute struct {
	Name       string
	Expression string
}

// ParseCustomAttribute parses a "name=expression" flag value.
func ParseCustomAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(expression) == "" {
		return CustomAttribute{}, fmt.Errorf("attribute must be name=expression, got %q", s)
	}
	return CustomAttribute{
		Name:       strings.TrimSpace(name),
		Expression: strings.TrimSpace(expression),
	}, nil
}

// envConfig are the environment-variable defaults; command-line flags take
// precedence over them.
type envConfig struct {
	Input  string `env:"TRACECAP_INPUT" envDefault:"-"`
	Filter string `env:"TRACECAP_FILTER" envDefault:""`
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &Config{
		Input:  ec.Input,
		Filter: ec.Filter,
	}, nil
}

// AddCustomAttributes parses and appends name=expression flag values.
func (c *Config) AddCustomAttributes(values []string) error {
	for _, v := range values {
		attr, err := ParseCustomAttribute(v)
		if err != nil {
			return err
		}
		c.CustomAttributes = append(c.CustomAttributes, attr)
	}
	return nil
}
