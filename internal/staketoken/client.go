package staketoken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/circuit"
)

// Client calls an external stake token service over HTTP. Transfers go
// through a circuit breaker: once the token service is known to be down,
// lock operations fail fast instead of holding ledger requests open.
type Client struct {
	baseURL string
	custody id.AccountID
	http    *http.Client
	breaker *circuit.Breaker
}

func NewClient(baseURL string, custody id.AccountID, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		custody: custody,
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New("staketoken", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
	}
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type transferRequest struct {
	Asset  string `json:"asset"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (c *Client) BalanceOf(ctx context.Context, asset id.Asset, account id.AccountID) (int64, error) {
	url := fmt.Sprintf("%s/v1/assets/%s/balances/%s", c.baseURL, asset, account)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "stake token service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("stake token service returned %d", resp.StatusCode))
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "malformed balance response")
	}
	return body.Balance, nil
}

func (c *Client) TransferFrom(ctx context.Context, asset id.Asset, from, to id.AccountID, amount int64) error {
	return c.transfer(ctx, transferRequest{
		Asset:  asset.String(),
		From:   from.String(),
		To:     to.String(),
		Amount: amount,
	})
}

func (c *Client) Transfer(ctx context.Context, asset id.Asset, to id.AccountID, amount int64) error {
	return c.transfer(ctx, transferRequest{
		Asset:  asset.String(),
		From:   c.custody.String(),
		To:     to.String(),
		Amount: amount,
	})
}

func (c *Client) transfer(ctx context.Context, body transferRequest) error {
	if c.breaker.IsOpen() {
		return dErrors.New(dErrors.CodeInternal, "stake token service unavailable")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return dErrors.Wrap(err, dErrors.CodeInternal, "stake token service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		c.breaker.RecordSuccess()
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Balance or allowance shortfall is the token service's verdict, not
		// an availability problem.
		c.breaker.RecordSuccess()
		return dErrors.New(dErrors.CodeConflict, "stake transfer rejected by token service")
	default:
		c.breaker.RecordFailure()
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("stake token service returned %d", resp.StatusCode))
	}
}
