package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeNotFound, "user missing")
	assert.Equal(t, CodeNotFound, CodeOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestWrap_PreservesChain(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, CodeDependency, "store unavailable")

	require.ErrorIs(t, err, base)
	assert.Equal(t, CodeDependency, CodeOf(err))
	assert.Contains(t, err.Error(), "DEPENDENCY_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWith_Field(t *testing.T) {
	err := New(CodeAlreadyMatched, "user is already matched").With("conflictId", "user-9")

	assert.Equal(t, "user-9", Field(err, "conflictId"))
	assert.Equal(t, "", Field(err, "missing"))

	wrapped := fmt.Errorf("pairing: %w", err)
	assert.Equal(t, "user-9", Field(wrapped, "conflictId"))
}

func TestHasCode(t *testing.T) {
	err := New(CodeRateLimited, "slow down")
	assert.True(t, HasCode(err, CodeRateLimited))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeRateLimited))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:       http.StatusBadRequest,
		CodeNotFound:         http.StatusNotFound,
		CodeAlreadyMatched:   http.StatusConflict,
		CodeNotPaired:        http.StatusConflict,
		CodeConflict:         http.StatusConflict,
		CodeRateLimited:      http.StatusTooManyRequests,
		CodePermissionDenied: http.StatusForbidden,
		CodeUnauthorized:     http.StatusUnauthorized,
		CodeDependency:       http.StatusBadGateway,
		CodeTimeout:          http.StatusGatewayTimeout,
		CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
