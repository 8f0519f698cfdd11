// Package credential implements the identity credential ledger: one
// non-transferable-by-default citizenship token per qualifying account,
// moved only through the controller.
package credential

import (
	"time"

	id "civitas/pkg/domain"
)

// Credential is one issued citizenship token.
type Credential struct {
	ID       id.CredentialID
	Owner    id.AccountID
	MintedAt time.Time
}

// Counters is the ledger's supply state. NextID only ever increases, even
// across burns; TotalSupply is minted minus burned.
type Counters struct {
	NextID      id.CredentialID
	TotalSupply uint64
}

// Stats is the public supply read.
type Stats struct {
	TotalSupply uint64
	NextID      id.CredentialID
}
