package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"rounds up partial seconds", NewRateLimitError("slow down", 1500*time.Millisecond), 2},
		{"whole seconds kept", NewRateLimitError("slow down", 3*time.Second), 3},
		{"never below one second", NewRateLimitError("slow down", 10*time.Millisecond), 1},
		{"zero for other kinds", NewConflictError("duplicate"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.RetryAfterSeconds())
		})
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NewNotFoundError("poll not found")

	got, ok := AsAppError(appErr)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, got.Type)

	// Wrapped AppErrors are still found
	wrapped := fmt.Errorf("loading poll: %w", appErr)
	got, ok = AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, got.Type)

	_, ok = AsAppError(errors.New("plain failure"))
	assert.False(t, ok)
}

func TestInternalDetailStaysOutOfMessage(t *testing.T) {
	cause := errors.New("pq: connection refused")
	appErr := NewInternalError("something went wrong", cause)

	assert.Equal(t, cause, appErr.Unwrap())
	assert.Contains(t, appErr.Error(), "internal")
}
