package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
		status   int
	}{
		{"max retries", MaxRetriesExceeded("tenant", "t1", 3, fmt.Errorf("deadlock")), ErrMaxRetriesExceeded, CodeMaxRetriesExceeded, http.StatusServiceUnavailable},
		{"parent not found", ParentNotFound("tenant", "t1"), ErrParentNotFound, CodeParentNotFound, http.StatusNotFound},
		{"ambiguous parent", AmbiguousParent("tenant", "t1", 2), ErrAmbiguousParent, CodeAmbiguousParent, http.StatusInternalServerError},
		{"ambiguous target", AmbiguousTarget("tenant", "t1", 2), ErrAmbiguousTarget, CodeAmbiguousTarget, http.StatusInternalServerError},
		{"resource not found", ResourceNotFound("pserver", "p1"), ErrResourceNotFound, CodeResourceNotFound, http.StatusNotFound},
		{"already exists", AlreadyExists("pserver", "p1"), ErrAlreadyExists, CodeAlreadyExists, http.StatusConflict},
		{"precondition", PreconditionFailed("pserver", "p1", "1", "2"), ErrPreconditionFailed, CodePreconditionFailed, http.StatusPreconditionFailed},
		{"mutation", MutationFailure("pserver", "p1", fmt.Errorf("boom")), ErrMutationFailure, CodeMutationFailure, http.StatusInternalServerError},
		{"unavailable", StoreUnavailable("down"), ErrStoreUnavailable, CodeStoreUnavailable, http.StatusServiceUnavailable},
		{"validation", ValidationErrorf("bad %s", "input"), ErrValidation, CodeValidation, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("request failed: %w", tt.err)
			assert.True(t, stderrors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(wrapped))
			assert.Equal(t, tt.status, StatusOf(wrapped))
		})
	}
}

func TestAmbiguousSentinelsAreDistinct(t *testing.T) {
	assert.False(t, stderrors.Is(AmbiguousParent("a", "b", 2), ErrAmbiguousTarget))
	assert.False(t, stderrors.Is(AmbiguousTarget("a", "b", 2), ErrAmbiguousParent))
}

func TestMaxRetriesExceededKeepsCauseOutOfMessage(t *testing.T) {
	cause := fmt.Errorf("Neo.TransientError.Transaction.DeadlockDetected")
	err := MaxRetriesExceeded("tenant", "t1", 3, cause)

	assert.Contains(t, err.Message, "tenant")
	assert.NotContains(t, err.Message, "Deadlock")
	assert.Same(t, cause, stderrors.Unwrap(err))
	assert.Equal(t, "tenant", err.Context["resource_type"])
	assert.Equal(t, 3, err.Context["attempts"])
}

func TestMaxRetriesExceededWithoutCause(t *testing.T) {
	err := MaxRetriesExceeded("tenant", "t1", 3, nil)
	require.NotNil(t, err)
	assert.Equal(t, CodeMaxRetriesExceeded, err.Code)
}

func TestUntypedErrors(t *testing.T) {
	err := fmt.Errorf("plain")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, ErrorTypeInternal, GetType(err))
	assert.Equal(t, SeverityMedium, GetSeverity(err))
	assert.False(t, IsFatal(err))
}

func TestDetailedString(t *testing.T) {
	err := ParentNotFound("tenant", "t1")
	s := err.DetailedString()
	assert.Contains(t, s, "[PARENT_NOT_FOUND]")
	assert.Contains(t, s, CodeParentNotFound)
	assert.Contains(t, s, "resource_key: t1")
}
