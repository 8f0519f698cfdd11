package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
)

// AcceptToken is the value a receiver endpoint must return to accept an
// incoming credential. Anything else rejects the transfer.
const AcceptToken = "civitas/credential"

// AcceptanceProber asks a recipient whether it accepts a credential before a
// safe transfer or safe mint applies. Implementations must treat any probe
// failure as a rejection.
type AcceptanceProber interface {
	Probe(ctx context.Context, endpoint string, probe AcceptanceProbe) error
}

// AcceptanceProbe is the payload POSTed to a registered receiver endpoint.
// Data is opaque application bytes forwarded verbatim from the caller.
type AcceptanceProbe struct {
	Actor id.AccountID    `json:"actor"`
	From  id.AccountID    `json:"from"`
	To    id.AccountID    `json:"to"`
	ID    id.CredentialID `json:"id"`
	Data  []byte          `json:"data,omitempty"`
}

type acceptanceResponse struct {
	Accept string `json:"accept"`
}

// HTTPProber probes receiver endpoints over HTTP. A 200 response carrying
// the accept token is the only acceptance; timeouts, transport errors, and
// any other status reject.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint string, probe AcceptanceProbe) error {
	body, err := json.Marshal(probe)
	if err != nil {
		return fmt.Errorf("marshal acceptance probe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnsafeRecipient, "receiver endpoint is invalid")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnsafeRecipient, "receiver did not respond")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dErrors.New(dErrors.CodeUnsafeRecipient,
			fmt.Sprintf("receiver rejected with status %d", resp.StatusCode))
	}

	var accept acceptanceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&accept); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnsafeRecipient, "receiver response is not valid JSON")
	}
	if accept.Accept != AcceptToken {
		return dErrors.New(dErrors.CodeUnsafeRecipient, "receiver did not return the accept token")
	}
	return nil
}

// DecodeProbeData parses the optional base64 data field carried by safe
// transfer requests.
func DecodeProbeData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "data must be base64")
	}
	return data, nil
}
