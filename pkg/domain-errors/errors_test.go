package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeUserNotFound, "no such user")
		assert.True(t, HasCode(err, CodeUserNotFound))
		assert.False(t, HasCode(err, CodeUserInactive))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeResolutionError, "user store unreachable")
		wrapped := fmt.Errorf("authorize: %w", err)

		assert.True(t, HasCode(wrapped, CodeResolutionError))
		assert.True(t, errors.Is(wrapped, cause))
	})

	t.Run("false for uncoded errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil in, nil out", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("preserves cause chain", func(t *testing.T) {
		cause := errors.New("pq: connection reset")
		err := Wrap(cause, CodeInternal, "failed to record failure")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "failed to record failure")
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeDomainNotAllowed, CodeOf(New(CodeDomainNotAllowed, "restricted")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("uncoded")))
}

func TestIsComparesByCode(t *testing.T) {
	a := New(CodeUserInactive, "disabled")
	b := New(CodeUserInactive, "a different message")
	assert.ErrorIs(t, a, b)
}
