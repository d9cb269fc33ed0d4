package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Error is a failed ledger call. The round outcome and the displayed
// result stand when it occurs; only the balance may go stale.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger call failed (%d): %s", e.StatusCode, e.Message)
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
}

type pointsRequest struct {
	Points int64 `json:"points"`
}

type userResponse struct {
	Data User `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client talks to the remote points ledger. The auth token is supplied
// out of band.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Settle applies a signed point delta and returns the authoritative
// balance. The delta call carries no idempotency key and is never
// retried: a retry after a timeout could double-settle. Only the
// follow-up balance refresh retries; when it keeps failing the
// settlement still counts and the last known balance is returned.
func (c *Client) Settle(ctx context.Context, delta int64) (int64, error) {
	body, err := json.Marshal(pointsRequest{Points: delta})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/points", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, readError(resp)
	}

	balance, err := c.refreshBalance(ctx)
	if err != nil {
		log.Printf("[LEDGER] Balance refresh failed, balance may be stale: %v", err)
		return 0, nil
	}
	return balance, nil
}

// CurrentUser fetches the authoritative user record, single shot.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readError(resp)
	}

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, err
	}
	return &ur.Data, nil
}

// refreshBalance re-reads the server-side balance with bounded backoff
// so server-side adjustments (referral bonuses, caps) are picked up.
func (c *Client) refreshBalance(ctx context.Context) (int64, error) {
	var balance int64
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		user, err := c.CurrentUser(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		balance = user.Points
		return nil
	})
	return balance, err
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		return &Error{StatusCode: resp.StatusCode, Message: er.Message}
	}
	return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
