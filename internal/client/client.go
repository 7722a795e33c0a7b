// Package client talks to the staff REST backend on behalf of one dashboard session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/rbac"
)

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("backend returned status %d", e.Code)
}

// Client wraps the /api/v1 endpoints with a bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a client. A nil httpClient gets a 10s timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: httpClient}
}

// FetchCurrentUser loads the identity behind the credential.
func (c *Client) FetchCurrentUser(ctx context.Context) (*permissions.Identity, error) {
	var rec permissions.Record
	if err := c.do(ctx, http.MethodGet, "/me", nil, &rec); err != nil {
		return nil, err
	}
	identity, err := permissions.DecodeIdentity(rec)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// FetchAllStaffPermissions lists every staff record in wire form.
func (c *Client) FetchAllStaffPermissions(ctx context.Context) ([]permissions.Record, error) {
	var records []permissions.Record
	if err := c.do(ctx, http.MethodGet, "/staff", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

type updateReply struct {
	Status string             `json:"status"`
	User   permissions.Record `json:"user"`
}

// UpdateStaffPermission sends a single-field permission patch.
func (c *Client) UpdateStaffPermission(ctx context.Context, targetID int64, patch map[permissions.Capability]bool) (rbac.UpdateResult, error) {
	body := make(map[string]bool, len(patch))
	for capability, granted := range patch {
		body[string(capability)] = granted
	}
	var reply updateReply
	path := "/staff/" + strconv.FormatInt(targetID, 10) + "/permissions"
	if err := c.do(ctx, http.MethodPatch, path, body, &reply); err != nil {
		return rbac.UpdateResult{}, err
	}
	return rbac.UpdateResult{Status: reply.Status, User: reply.User}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var problem struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &problem); err == nil {
		detail := problem.Detail
		if detail == "" {
			detail = problem.Title
		}
		return &StatusError{Code: resp.StatusCode, Detail: detail}
	}
	return &StatusError{Code: resp.StatusCode}
}
