package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/circuit"
)

// maxDescriptorBytes caps how much of a renderer response the ledger will
// relay. The output is opaque but it travels through our API responses.
const maxDescriptorBytes = 1 << 20

// Client calls an external renderer service. The response body is relayed
// verbatim; the ledger takes no position on its format.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New("renderer", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
	}
}

func (c *Client) Render(ctx context.Context, credentialID id.CredentialID, owner id.AccountID, mintedAt time.Time) (string, error) {
	if c.breaker.IsOpen() {
		return "", dErrors.New(dErrors.CodeInternal, "renderer unavailable")
	}

	query := url.Values{
		"owner":     {owner.String()},
		"minted_at": {strconv.FormatInt(mintedAt.Unix(), 10)},
	}
	endpoint := fmt.Sprintf("%s/v1/render/%s?%s", c.baseURL, credentialID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "renderer unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return "", dErrors.New(dErrors.CodeInternal, fmt.Sprintf("renderer returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptorBytes))
	if err != nil {
		c.breaker.RecordFailure()
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "renderer response truncated")
	}

	c.breaker.RecordSuccess()
	return string(body), nil
}
