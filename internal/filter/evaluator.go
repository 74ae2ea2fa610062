// Package filter evaluates user expressions over normalized timers, both to
// gate which timers are exported and to compute custom span attributes.
package filter

import (
	"fmt"
	"log"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"tracecap/internal/capture"
	"tracecap/internal/config"
)

// TimerEnv is the expression environment for one timer.
type TimerEnv map[string]interface{}

// NewTimerEnv builds the expression environment from a normalized timer and
// its resolved label and thread name.
func NewTimerEnv(timer capture.TimerInfo, label, threadName string) TimerEnv {
	return TimerEnv{
		"pid":         int(timer.ProcessID),
		"tid":         int(timer.ThreadID),
		"type":        timer.Type.String(),
		"depth":       int(timer.Depth),
		"processor":   int(timer.Processor),
		"duration_ns": int64(timer.End - timer.Start),
		"label":       label,
		"thread_name": threadName,
	}
}

// typeCheckEnv is the environment shape used for expression compilation.
func typeCheckEnv() TimerEnv {
	return NewTimerEnv(capture.TimerInfo{}, "", "")
}

// Evaluator handles compilation and evaluation of the filter expression and
// custom attribute expressions.
type Evaluator struct {
	filter        *vm.Program
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new evaluator.
// It pre-compiles all expressions for efficiency; a compile failure is a
// configuration error.
func NewEvaluator(filterExpression string, customAttrs []config.CustomAttribute) (*Evaluator, error) {
	e := &Evaluator{customAttrs: customAttrs}

	if filterExpression != "" {
		program, err := expr.Compile(filterExpression, expr.Env(typeCheckEnv()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter expression: %w", err)
		}
		e.filter = program
	}

	e.compiledExprs = make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(typeCheckEnv()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		e.compiledExprs[i] = program
	}

	return e, nil
}

// Match reports whether a timer passes the filter expression. Timers pass
// when no filter is configured; an evaluation failure fails open and is
// logged.
func (e *Evaluator) Match(env TimerEnv) bool {
	if e.filter == nil {
		return true
	}
	output, err := expr.Run(e.filter, map[string]interface{}(env))
	if err != nil {
		log.Printf("Warning: failed to evaluate filter expression: %v", err)
		return true
	}
	match, ok := output.(bool)
	if !ok {
		return true
	}
	return match
}

// EvaluateCustomAttributes evaluates the custom attribute expressions for a
// given timer environment. This is a pure function over the environment.
func (e *Evaluator) EvaluateCustomAttributes(env TimerEnv) []attribute.KeyValue {
	if len(e.customAttrs) == 0 {
		return nil
	}

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], map[string]interface{}(env))
		if err != nil {
			// Log error but continue with other attributes
			log.Printf("Warning: failed to evaluate expression for attribute %q: %v", customAttr.Name, err)
			continue
		}
		attrs = append(attrs, toAttribute(customAttr.Name, output))
	}
	return attrs
}

// toAttribute converts an expression result to an OTel attribute.
func toAttribute(name string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(name, v)
	case int:
		return attribute.Int(name, v)
	case int64:
		return attribute.Int64(name, v)
	case float64:
		return attribute.Float64(name, v)
	case string:
		return attribute.String(name, v)
	default:
		return attribute.String(name, fmt.Sprintf("%v", v))
	}
}
