// Package gateway is the HTTP client for the SecureChat server API.
// The server is consumed as an opaque request/response API; this package
// owns the wire shapes and the error taxonomy, nothing else.
package gateway

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
)

// ErrNotFound is returned when a lookup resolves to no record.
// It is an expected domain outcome, not a transport failure.
var ErrNotFound = errors.New("gateway: not found")

// StatusError is returned for non-2xx responses other than expected
// negative lookups.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: server returned status %d: %s", e.Code, e.Body)
}

// Client talks to the SecureChat server over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a gateway client for the given base URL. Every request is
// bounded by timeout; there is no retry policy here by contract.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do executes one request against the server. A non-2xx status becomes a
// *StatusError, except 404 which maps to ErrNotFound.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}

// ListAccounts returns all accounts known to the server.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/users/", nil)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(respBody, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	return accounts, nil
}

// CreateAccount creates a new account with the given display name.
func (c *Client) CreateAccount(ctx context.Context, name string) (*Account, error) {
	respBody, err := c.do(ctx, http.MethodPost, "/users/", map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(respBody, &account); err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &account, nil
}

// GetAccount looks up a single account by id. Returns ErrNotFound when the
// id does not resolve.
func (c *Client) GetAccount(ctx context.Context, id int64) (*Account, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", id), nil)
	if err != nil {
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(respBody, &account); err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &account, nil
}

// SendMessage submits a message and returns the created server record.
func (c *Client) SendMessage(ctx context.Context, senderID, recipientID int64, content string) (*WireMessage, error) {
	payload := map[string]any{
		"sender_id":    senderID,
		"recipient_id": recipientID,
		"message":      content,
	}
	respBody, err := c.do(ctx, http.MethodPost, "/messages/", payload)
	if err != nil {
		return nil, err
	}
	var msg WireMessage
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

// GetConversation returns the full two-party history in chronological order.
func (c *Client) GetConversation(ctx context.Context, idA, idB int64) ([]WireMessage, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/conversations/%d/%d", idA, idB), nil)
	if err != nil {
		return nil, err
	}
	var msgs []WireMessage
	if err := json.Unmarshal(respBody, &msgs); err != nil {
		return nil, fmt.Errorf("parse conversation: %w", err)
	}
	return msgs, nil
}

// GetContactSummaries returns one summary row per contact the account has
// interacted with.
func (c *Client) GetContactSummaries(ctx context.Context, accountID int64) ([]ContactSummary, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/contacts", accountID), nil)
	if err != nil {
		return nil, err
	}
	var summaries []ContactSummary
	if err := json.Unmarshal(respBody, &summaries); err != nil {
		return nil, fmt.Errorf("parse contact summaries: %w", err)
	}
	return summaries, nil
}

// MarkConversationRead marks every message from contactID to accountID read.
func (c *Client) MarkConversationRead(ctx context.Context, accountID, contactID int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/%d/read", accountID, contactID), nil)
	return err
}

// GetHealth fetches the server health status.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(respBody, &h); err != nil {
		return nil, fmt.Errorf("parse health: %w", err)
	}
	return &h, nil
}
