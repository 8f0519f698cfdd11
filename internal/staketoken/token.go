// Package staketoken is the port to the fungible stake asset. The token
// service enforces its own balance and allowance invariants; the ledger only
// moves stake into and out of its custody account through this interface.
package staketoken

import (
	"context"

	id "civitas/pkg/domain"
)

// TokenService is the fungible-stake collaborator contract.
type TokenService interface {
	// BalanceOf returns the account's balance in base units.
	BalanceOf(ctx context.Context, asset id.Asset, account id.AccountID) (int64, error)

	// TransferFrom moves stake between accounts using the from-account's
	// allowance for the caller (the ledger's custody account).
	TransferFrom(ctx context.Context, asset id.Asset, from, to id.AccountID, amount int64) error

	// Transfer moves stake out of the ledger's custody account.
	Transfer(ctx context.Context, asset id.Asset, to id.AccountID, amount int64) error
}
