package handler

import (
	"civitas/internal/credential"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
)

// mintRequest issues a credential to an account. Data rides along only on
// the safe variant, base64-encoded, and is forwarded to the receiver probe.
type mintRequest struct {
	To   string `json:"to"`
	Data string `json:"data,omitempty"`

	to   id.AccountID
	data []byte
}

func (r *mintRequest) Validate() error {
	to, err := id.ParseAccountID(r.To)
	if err != nil {
		return err
	}
	data, err := credential.DecodeProbeData(r.Data)
	if err != nil {
		return err
	}
	r.to = to
	r.data = data
	return nil
}

type transferRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	ID    string `json:"id"`
	Actor string `json:"actor,omitempty"`
	Data  string `json:"data,omitempty"`

	from         id.AccountID
	to           id.AccountID
	credentialID id.CredentialID
	actor        id.AccountID
	data         []byte
}

func (r *transferRequest) Validate() error {
	from, err := id.ParseAccountID(r.From)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "from is invalid")
	}
	to, err := id.ParseAccountID(r.To)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "to is invalid")
	}
	credentialID, err := id.ParseCredentialID(r.ID)
	if err != nil {
		return err
	}

	// Zero actor means the controller acts as itself.
	var actor id.AccountID
	if r.Actor != "" {
		actor, err = id.ParseAccountID(r.Actor)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "actor is invalid")
		}
	}
	data, err := credential.DecodeProbeData(r.Data)
	if err != nil {
		return err
	}

	r.from = from
	r.to = to
	r.credentialID = credentialID
	r.actor = actor
	r.data = data
	return nil
}

// approveRequest grants or clears a per-credential approval. An empty
// spender clears.
type approveRequest struct {
	Spender string `json:"spender,omitempty"`

	spender id.AccountID
}

func (r *approveRequest) Validate() error {
	if r.Spender == "" {
		return nil
	}
	spender, err := id.ParseAccountID(r.Spender)
	if err != nil {
		return err
	}
	r.spender = spender
	return nil
}

type operatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`

	operator id.AccountID
}

func (r *operatorRequest) Validate() error {
	operator, err := id.ParseAccountID(r.Operator)
	if err != nil {
		return err
	}
	r.operator = operator
	return nil
}

type receiverRequest struct {
	Endpoint string `json:"endpoint"`
}

func (r *receiverRequest) Validate() error {
	if r.Endpoint == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "endpoint is required")
	}
	return nil
}
