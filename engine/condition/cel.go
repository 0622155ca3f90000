// Package condition evaluates the side-effect-free predicates a
// WorkflowDefinition's Triggers.Condition uses to filter events (§3.2,
// §4.2 step 2), using CEL so predicates are sandboxed, cheap to evaluate,
// and cannot mutate state.
package condition

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"
)

const (
	defaultCostLimit  = uint64(1000)
	defaultCacheSize  = int64(256)
	programCacheCount = int64(1e4)
)

// Evaluator compiles and evaluates boolean CEL expressions against an
// "event" variable shaped as {type: string, payload: map}.
type Evaluator struct {
	env          *cel.Env
	costLimit    uint64
	programCache *ristretto.Cache[string, cel.Program]
}

// Option configures an Evaluator.
type Option func(*evalConfig)

type evalConfig struct {
	costLimit uint64
	cacheSize int64
}

// WithCostLimit caps the CEL runtime cost budget per evaluation (guards
// against accidentally expensive predicates in §3.2's "must be fast").
func WithCostLimit(limit uint64) Option {
	return func(c *evalConfig) { c.costLimit = limit }
}

// WithCacheSize bounds the number of compiled programs kept in the
// ristretto cache, keyed by expression text.
func WithCacheSize(size int64) Option {
	return func(c *evalConfig) { c.cacheSize = size }
}

// NewCELEvaluator builds an Evaluator with the "event" variable in scope.
func NewCELEvaluator(opts ...Option) (*Evaluator, error) {
	cfg := evalConfig{costLimit: defaultCostLimit, cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("condition: new CEL env: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters: programCacheCount,
		MaxCost:     cfg.cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("condition: new program cache: %w", err)
	}
	return &Evaluator{env: env, costLimit: cfg.costLimit, programCache: cache}, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	if prog, ok := e.programCache.Get(expr); ok {
		return prog, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition: compilation error: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition: expression %q must evaluate to a boolean, got %s", expr, ast.OutputType())
	}
	prog, err := e.env.Program(ast, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("condition: program construction: %w", err)
	}
	e.programCache.Set(expr, prog, 1)
	e.programCache.Wait()
	return prog, nil
}

// ValidateExpression compiles expr without evaluating it, surfacing
// compilation errors (e.g. registration-time config validation).
func (e *Evaluator) ValidateExpression(expr string) error {
	_, err := e.compile(expr)
	return err
}

// Evaluate compiles (or reuses a cached compilation of) expr and runs it
// against data, which populates the "event" variable. A non-boolean result,
// a runtime type error, or an exceeded cost budget is returned as an error;
// the caller (the resolver) treats any error as "does not match" (§4.2).
func (e *Evaluator) Evaluate(ctx context.Context, expr string, data map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("condition: %w", err)
	}
	prog, err := e.compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prog.Eval(data)
	if err != nil {
		return false, fmt.Errorf("condition: evaluation error: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition: expression %q did not evaluate to a boolean", expr)
	}
	return b, nil
}
