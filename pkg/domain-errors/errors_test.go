package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeNotMinted, "credential 7 not minted")

	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNotMinted))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.Equal(t, "not_minted: credential 7 not minted", err.Error())
}

func TestWrap(t *testing.T) {
	t.Run("nil error yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("preserves the cause chain", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeInternal, "store unavailable")

		require.Error(t, err)
		assert.True(t, HasCode(err, CodeInternal))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("finds codes at any depth", func(t *testing.T) {
		inner := New(CodeLockActive, "lock already exists")
		outer := Wrap(inner, CodeConflict, "create rejected")

		assert.True(t, HasCode(outer, CodeConflict))
		assert.True(t, HasCode(outer, CodeLockActive))
		assert.False(t, HasCode(outer, CodeNotFound))
	})

	t.Run("survives fmt.Errorf wrapping", func(t *testing.T) {
		err := fmt.Errorf("mint: %w", New(CodeZeroAccount, "recipient is the zero account"))
		assert.True(t, HasCode(err, CodeZeroAccount))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnauthorized, CodeOf(New(CodeUnauthorized, "nope")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeZeroAccount, http.StatusBadRequest},
		{CodeLockNotIncreased, http.StatusBadRequest},
		{CodeHorizonExceeded, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotEligible, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeNotMinted, http.StatusNotFound},
		{CodeNoActiveLock, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInvalidFrom, http.StatusConflict},
		{CodeLockActive, http.StatusConflict},
		{CodeLockExpired, http.StatusConflict},
		{CodeLockNotExpired, http.StatusConflict},
		{CodeUnsafeRecipient, http.StatusUnprocessableEntity},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInvariantViolation, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(New(tt.code, "x")))
		})
	}

	t.Run("uncoded error maps to 500", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("boom")))
	})
}
