// Package renderer is the port to the metadata rendering collaborator. The
// ledger passes (id, owner, mintedAt) and returns the renderer's output
// verbatim: no caching, no validation of the payload.
package renderer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	id "civitas/pkg/domain"
)

// Renderer produces the display descriptor for a credential.
type Renderer interface {
	Render(ctx context.Context, credentialID id.CredentialID, owner id.AccountID, mintedAt time.Time) (string, error)
}

// Static is the default in-process renderer. It produces a deterministic
// JSON data URI so deployments without an external renderer still serve
// well-formed descriptors.
type Static struct {
	// Collection names the credential series in the descriptor.
	Collection string
}

func NewStatic(collection string) *Static {
	if collection == "" {
		collection = "Civitas Citizenship"
	}
	return &Static{Collection: collection}
}

type staticDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	MintedAt    string `json:"minted_at"`
}

func (s *Static) Render(_ context.Context, credentialID id.CredentialID, owner id.AccountID, mintedAt time.Time) (string, error) {
	descriptor := staticDescriptor{
		Name:        fmt.Sprintf("%s #%s", s.Collection, credentialID),
		Description: "Citizenship credential issued against a decaying stake lock.",
		Owner:       owner.String(),
		MintedAt:    mintedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(descriptor)
	if err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(payload), nil
}
