package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civitas/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the parsing invariant:
// account IDs must be valid, non-empty, non-nil UUIDs. The zero account is
// reserved for mint/burn counterparties and must never arrive from outside.
func TestParseAccountID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseAccountID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAccountID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseAccountID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, AccountID(validUUID), id)
		assert.False(t, id.IsZero())
	})
}

// TestParseAccountID_SecurityInvariants validates trust boundary parsing:
// attack vectors must be rejected at API entry points.
func TestParseAccountID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE credentials;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestZeroAccount documents the reserved-account invariant: the zero value is
// detectable, never parseable, and distinct from every allocated account.
func TestZeroAccount(t *testing.T) {
	assert.True(t, ZeroAccount.IsZero())
	assert.False(t, AccountID(uuid.New()).IsZero())

	_, err := ParseAccountID(ZeroAccount.String())
	require.Error(t, err, "the zero account must not round-trip through parsing")
}

func TestAccountID_TextRoundTrip(t *testing.T) {
	original := AccountID(uuid.New())

	text, err := original.MarshalText()
	require.NoError(t, err)

	var decoded AccountID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, original, decoded)

	var rejected AccountID
	require.Error(t, rejected.UnmarshalText([]byte(uuid.Nil.String())))
}

func TestParseCredentialID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CredentialID
		wantErr bool
	}{
		{"zero is a valid id", "0", 0, false},
		{"positive id", "42", 42, false},
		{"max uint64", "18446744073709551615", CredentialID(18446744073709551615), false},
		{"empty", "", 0, true},
		{"negative", "-1", 0, true},
		{"overflow", "18446744073709551616", 0, true},
		{"non-numeric", "abc", 0, true},
		{"hex not accepted", "0x10", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentialID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
