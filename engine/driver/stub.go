package driver

import "context"

// StubDriver is a deterministic Driver used by tests and by the conformance
// fixture workflows; it never calls out to a real model. Responses is
// consulted in order, falling back to echoing the prompt once exhausted.
type StubDriver struct {
	Responses []QueryResult
	calls     int
}

// NewStubFactory returns a Factory that always returns the same StubDriver,
// regardless of the requested Criteria.
func NewStubFactory(d *StubDriver) Factory {
	return func(Criteria) (Driver, error) { return d, nil }
}

func (d *StubDriver) Query(_ context.Context, compiledPrompt string, _ QueryOptions) (QueryResult, error) {
	if d.calls < len(d.Responses) {
		r := d.Responses[d.calls]
		d.calls++
		return r, nil
	}
	d.calls++
	return QueryResult{Content: compiledPrompt}, nil
}

// Calls reports how many times Query has been invoked.
func (d *StubDriver) Calls() int { return d.calls }
