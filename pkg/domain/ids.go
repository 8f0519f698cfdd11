// Package domain holds the typed identifiers shared by every module.
// Typed IDs prevent cross-parameter mixups at compile time; Parse functions
// enforce validity at trust boundaries so services never see raw strings.
package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "civitas/pkg/domain-errors"
)

// AccountID identifies an account on the ledger. The zero value is the
// reserved "zero account": it is never a valid holder, and mint/burn audit
// records use it as the synthetic counterparty.
type AccountID uuid.UUID

// ZeroAccount is the reserved empty account.
var ZeroAccount = AccountID{}

// ParseAccountID validates an external account identifier. Empty strings,
// malformed UUIDs, and the nil UUID are all rejected: the zero account must
// never enter through an API boundary.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id must not be the nil UUID")
	}
	return AccountID(parsed), nil
}

// IsZero reports whether the account is the reserved zero account.
func (a AccountID) IsZero() bool {
	return uuid.UUID(a) == uuid.Nil
}

func (a AccountID) String() string {
	return uuid.UUID(a).String()
}

// MarshalText makes AccountID usable as a JSON object key and value.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts only valid non-nil UUIDs.
func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CredentialID identifies a credential on the ledger. IDs are allocated
// monotonically starting at zero and are never reused, even after a burn.
type CredentialID uint64

// ParseCredentialID validates an external credential identifier, typically a
// route parameter.
func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credential id must be a non-negative integer")
	}
	return CredentialID(n), nil
}

func (c CredentialID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}
