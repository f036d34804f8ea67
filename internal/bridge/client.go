// Package bridge is the follower's half of the coordination protocol: an
// HTTP client for the leader's loopback endpoint plus the polling loop that
// claims pending dialogs for local presentation and relays human decisions
// back.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// Client talks to the leader instance. SubmitDialog holds its request open
// for as long as the dialog stays unresolved, so the client carries no
// global timeout; short-lived calls bound themselves with their context.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// BaseURL returns the endpoint this client dials.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitDialog opens a dialog on the leader and blocks until a human
// resolves it. It satisfies the rpc Submitter interface for follower-mode
// stdio sessions.
func (c *Client) SubmitDialog(ctx context.Context, reason, workspace string) (dialog.Resolution, error) {
	payload, err := json.Marshal(map[string]string{
		"reason":    reason,
		"workspace": workspace,
	})
	if err != nil {
		return dialog.Resolution{}, fmt.Errorf("marshal dialog request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dialog", bytes.NewReader(payload))
	if err != nil {
		return dialog.Resolution{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return dialog.Resolution{}, fmt.Errorf("coordination endpoint %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return dialog.Resolution{}, fmt.Errorf("coordination endpoint %s returned %d: %s", c.baseURL, resp.StatusCode, string(body))
	}

	var res dialog.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return dialog.Resolution{}, fmt.Errorf("decode dialog resolution: %w", err)
	}
	return res, nil
}

// ListPending fetches the leader's unresolved dialogs, filtered to the given
// workspace roots. No roots means everything.
func (c *Client) ListPending(ctx context.Context, workspaces []string) ([]dialog.Request, error) {
	endpoint := c.baseURL + "/pending"
	if len(workspaces) > 0 {
		q := url.Values{"workspace": workspaces}
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coordination endpoint %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("coordination endpoint %s returned %d: %s", c.baseURL, resp.StatusCode, string(body))
	}

	var pending []dialog.Request
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		return nil, fmt.Errorf("decode pending list: %w", err)
	}
	return pending, nil
}

// Respond relays a human decision to the leader. It returns false without an
// error when the dialog was already settled; only transport and protocol
// failures are errors.
func (c *Client) Respond(ctx context.Context, id string, res dialog.Resolution) (bool, error) {
	payload, err := json.Marshal(map[string]any{
		"id":             id,
		"shouldContinue": res.ShouldContinue,
		"userInput":      res.UserInput,
		"attachments":    res.Attachments,
	})
	if err != nil {
		return false, fmt.Errorf("marshal respond request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/respond", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("coordination endpoint %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("coordination endpoint %s returned %d: %s", c.baseURL, resp.StatusCode, string(body))
	}

	var verdict struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("decode respond verdict: %w", err)
	}
	return verdict.Success, nil
}

// Health describes the leader's /health payload.
type Health struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Port            int    `json:"port"`
	SubscriberCount int    `json:"subscriberCount"`
	PendingCount    int    `json:"pendingCount"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("coordination endpoint %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Health{}, fmt.Errorf("coordination endpoint %s returned %d: %s", c.baseURL, resp.StatusCode, string(body))
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}
