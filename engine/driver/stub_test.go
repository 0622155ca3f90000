package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubDriver(t *testing.T) {
	t.Run("Should return canned responses in order then echo the prompt", func(t *testing.T) {
		stub := &StubDriver{Responses: []QueryResult{{Content: "first"}}}
		factory := NewStubFactory(stub)
		d, err := factory(Criteria{RequiredCapabilities: []string{"structured-output"}})
		require.NoError(t, err)

		first, err := d.Query(context.Background(), "prompt-1", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, "first", first.Content)

		second, err := d.Query(context.Background(), "prompt-2", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, "prompt-2", second.Content)
		assert.Equal(t, 2, stub.Calls())
	})
}
