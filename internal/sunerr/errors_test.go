package sunerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{Validation("gate failed", nil), 2},
		{Escalation("non_progressing", "sunwell review abc123"), 3},
		{Cancelled("user requested stop"), 4},
		{Planning("no candidate parsed", nil), 5},
		{Storage("disk full", nil), 5},
		{errors.New("plain error"), 5},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExitCode(c.err))
	}
}

func TestIsAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("context: %w", Tool("exec failed", cause))

	assert.True(t, Is(wrapped, KindTool))
	assert.False(t, Is(wrapped, KindPolicy))

	var se *SunwellError
	assert.True(t, errors.As(wrapped, &se))
	assert.ErrorIs(t, se, cause)
}

func TestEscalationCarriesRecoveryHint(t *testing.T) {
	err := Escalation("non_progressing", "sunwell review deadbeef")
	var se *SunwellError
	assert.True(t, errors.As(error(err), &se))
	assert.Equal(t, "sunwell review deadbeef", se.RecoveryHint)
}
