// Package wallet is the HTTP client for the wallet ledger.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

var (
	// ErrRejected is a 400 from the ledger: insufficient balance or a user
	// the ledger refuses to open a wallet for.
	ErrRejected = errors.New("wallet operation rejected")
	// ErrNotFound is returned by Delete when the user has no wallet.
	ErrNotFound = errors.New("wallet not found")
	// ErrRemote covers transport failures, timeouts and unexpected statuses.
	ErrRemote = errors.New("wallet ledger unavailable")
)

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
}

type transactRequest struct {
	Action domain.WalletAction `json:"action"`
	Amount int64               `json:"amount"`
}

func (c *Client) Debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	return c.transact(ctx, userID, domain.WalletDebit, amount)
}

func (c *Client) Credit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	return c.transact(ctx, userID, domain.WalletCredit, amount)
}

func (c *Client) transact(ctx context.Context, userID int64, action domain.WalletAction, amount int64) (*domain.Wallet, error) {
	const op = "wallet.Client.transact"

	body, err := json.Marshal(transactRequest{Action: action, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var w domain.Wallet
	status, err := c.do(ctx, http.MethodPut, userID, body, &w)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, action, err)
	}

	switch status {
	case http.StatusOK:
		return &w, nil
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%s: %s: %w", op, action, ErrRejected)
	default:
		return nil, fmt.Errorf("%s: %s: %w: status %d", op, action, ErrRemote, status)
	}
}

func (c *Client) Delete(ctx context.Context, userID int64) error {
	const op = "wallet.Client.Delete"

	status, err := c.do(ctx, http.MethodDelete, userID, nil, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: status %d", op, ErrRemote, status)
	}
}

// do performs one bounded request. out is decoded only on 200.
func (c *Client) do(ctx context.Context, method string, userID int64, body []byte, out any) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s/wallets/%d", c.baseURL, userID), rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("%w: decode: %v", ErrRemote, err)
		}
		return resp.StatusCode, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
