package domain

import (
	dErrors "civitas/pkg/domain-errors"
)

// Asset is a fungible asset symbol as known to the stake token service.
// Invariant: 1 to 16 characters, uppercase letters and digits only.
//
// Usage: construct via ParseAsset at trust boundaries to enforce the shape;
// direct casting bypasses validation.
type Asset string

// ParseAsset constructs an Asset from external input.
//
// Errors: returns CodeInvalidInput when the symbol is empty, too long, or
// contains characters outside [A-Z0-9]; no other errors are expected.
func ParseAsset(s string) (Asset, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "asset symbol cannot be empty")
	}
	if len(s) > 16 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "asset symbol must be at most 16 characters")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "asset symbol must contain only uppercase letters and digits")
		}
	}
	return Asset(s), nil
}

// IsValid checks whether the asset symbol satisfies the shape invariant.
func (a Asset) IsValid() bool {
	_, err := ParseAsset(string(a))
	return err == nil
}

// String returns the string representation of the asset symbol.
func (a Asset) String() string {
	return string(a)
}
