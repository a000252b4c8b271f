package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeCyclesThenRepeatsLastResponse(t *testing.T) {
	f := &Fake{Responses: []string{"first", "second"}}

	got, err := f.Complete(context.Background(), "sys", "a")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = f.Complete(context.Background(), "sys", "b")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	got, err = f.Complete(context.Background(), "sys", "c")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	assert.Equal(t, []string{"a", "b", "c"}, f.Prompts)
}

func TestFakeReturnsConfiguredError(t *testing.T) {
	f := &Fake{Err: assertError{}}
	_, err := f.Complete(context.Background(), "", "")
	assert.Error(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
