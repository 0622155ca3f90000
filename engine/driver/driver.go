// Package driver specifies the capability-based LLM driver factory the
// engine depends on (§6.3). The engine itself never calls Driver.Query
// except inside the scheduler's interpretation step; workflow bodies call it
// directly through their Context.
package driver

import "context"

// Criteria selects a driver instance by capability rather than by concrete
// model name, so workflows stay portable across provider configuration.
type Criteria struct {
	RequiredCapabilities  []string
	PreferredCapabilities []string
}

// QueryOptions tunes a single Query call.
type QueryOptions struct {
	Temperature *float32
	MaxTokens   *int32
}

// QueryResult is a driver's response to a compiled prompt. StructuredOutput
// is populated only when the caller requested structured output and the
// driver supports it; it is opaque JSON-decoded data.
type QueryResult struct {
	Content          string
	StructuredOutput any
}

// Driver exposes the single operation a workflow or the scheduler needs from
// an LLM (§6.3).
type Driver interface {
	Query(ctx context.Context, compiledPrompt string, opts QueryOptions) (QueryResult, error)
}

// Factory creates a Driver instance matching criteria. The engine's Context
// exposes this as CreateDriver.
type Factory func(criteria Criteria) (Driver, error)
