// Package identity is the HTTP client for the user directory's existence
// check.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable means the directory could not answer: transport failure,
// timeout or an unexpected status. It is never a statement about the user.
var ErrUnavailable = errors.New("identity directory unavailable")

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

// UserExists asks the directory whether userID is known.
//
// Returns:
//   - bool: true on 200, false on 404.
//   - error: identity.ErrUnavailable for anything else.
func (c *Client) UserExists(ctx context.Context, userID int64) (bool, error) {
	const op = "identity.Client.UserExists"

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d", c.baseURL, userID), nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w: status %d", op, ErrUnavailable, resp.StatusCode)
	}
}
