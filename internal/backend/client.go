// Package backend implements the HTTP JSON client for the application
// backend: auth reconciliation endpoints, per-resource record CRUD, saved
// reports, and usage analytics.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"coehub/pkg/domain"
)

// ErrUserNotFound signals the distinct "no such user" outcome of the login
// endpoint, as opposed to the backend being unreachable or erroring.
var ErrUserNotFound = errors.New("backend: user not found")

// APIError carries a structured backend error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("backend: status %d", e.Status)
}

// Is maps the user_not_found error code onto ErrUserNotFound so callers can
// branch with errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrUserNotFound && e.Code == "user_not_found"
}

// Client talks to the backend REST API. The zero value is not usable; use
// New. Safe for concurrent use once constructed.
type Client struct {
	base   *url.URL
	http   *http.Client
	header string

	mu    sync.Mutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New constructs a Client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{base: u, http: http.DefaultClient, header: "Authorization"}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken installs the bearer token attached to subsequent requests. An
// empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the currently installed bearer token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

type authResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *domain.BackendUser `json:"user,omitempty"`
	Token         string              `json:"token,omitempty"`
}

// CheckAuth asks the backend whether the current token maps to an established
// session. Returns (nil, nil) when the backend answers but no session exists.
func (c *Client) CheckAuth(ctx context.Context) (*domain.BackendUser, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodGet, "/auth/check", nil, &out); err != nil {
		return nil, err
	}
	if !out.Authenticated {
		return nil, nil
	}
	return out.User, nil
}

// Login resolves an existing backend user by email and establishes a backend
// session. A missing user is reported as ErrUserNotFound.
func (c *Client) Login(ctx context.Context, email string) (domain.BackendUser, error) {
	var out authResponse
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return domain.BackendUser{}, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	if out.User == nil {
		return domain.BackendUser{}, &APIError{Status: http.StatusInternalServerError, Message: "login response missing user"}
	}
	return *out.User, nil
}

// SyncProviderUser creates or updates a backend user from a provider identity
// and establishes a backend session for it.
func (c *Client) SyncProviderUser(ctx context.Context, email, uid, displayName string) (domain.BackendUser, error) {
	var out authResponse
	body := map[string]string{"email": email, "uid": uid, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/auth/sync-firebase-user", body, &out); err != nil {
		return domain.BackendUser{}, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	if out.User == nil {
		return domain.BackendUser{}, &APIError{Status: http.StatusInternalServerError, Message: "sync response missing user"}
	}
	return *out.User, nil
}

// List fetches the full current record list for a resource. onlyMine
// restricts to records created by the session's user.
func (c *Client) List(ctx context.Context, resource string, onlyMine bool) ([]domain.Record, error) {
	path := "/" + resource
	if onlyMine {
		path += "?onlyMine=" + strconv.FormatBool(onlyMine)
	}
	var out []domain.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts a new record and returns the server-assigned row.
func (c *Client) Create(ctx context.Context, resource string, fields map[string]any) (domain.Record, error) {
	var out domain.Record
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPost, "/"+resource, body, &out); err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// Update replaces the editable fields of an existing record.
func (c *Client) Update(ctx context.Context, resource, id string, fields map[string]any) (domain.Record, error) {
	var out domain.Record
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPut, "/"+resource+"/"+url.PathEscape(id), body, &out); err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// Delete removes a record. Deletion is terminal; there is no soft delete.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	return c.do(ctx, http.MethodDelete, "/"+resource+"/"+url.PathEscape(id), nil, nil)
}

// UpdateAttachment patches only the attachment reference of a record. An
// empty attachment clears it.
func (c *Client) UpdateAttachment(ctx context.Context, resource, id, attachment string) (domain.Record, error) {
	var out domain.Record
	body := map[string]string{"attachment": attachment}
	if err := c.do(ctx, http.MethodPut, "/"+resource+"/"+url.PathEscape(id)+"/attachment", body, &out); err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// SaveReport persists a named snapshot of a filter configuration.
func (c *Client) SaveReport(ctx context.Context, title string, sourceType domain.EntityType, criteria domain.FilterCriteria) (domain.Report, error) {
	var out domain.Report
	body := map[string]any{
		"title":          title,
		"sourceType":     sourceType,
		"filterCriteria": criteria,
	}
	if err := c.do(ctx, http.MethodPost, "/reports", body, &out); err != nil {
		return domain.Report{}, err
	}
	return out, nil
}

// DataUsage returns record counts per table plus the overall total.
func (c *Client) DataUsage(ctx context.Context) (Usage, error) {
	var out Usage
	if err := c.do(ctx, http.MethodGet, "/analytics/data-usage", nil, &out); err != nil {
		return Usage{}, err
	}
	return out, nil
}

// TableUsage returns the record count for one table.
func (c *Client) TableUsage(ctx context.Context, table string) (TableUsage, error) {
	var out TableUsage
	if err := c.do(ctx, http.MethodGet, "/analytics/data-usage/table/"+url.PathEscape(table), nil, &out); err != nil {
		return TableUsage{}, err
	}
	return out, nil
}

// UserUsage returns per-table counts of records created by one user.
func (c *Client) UserUsage(ctx context.Context, userID string) (UserUsage, error) {
	var out UserUsage
	if err := c.do(ctx, http.MethodGet, "/analytics/data-usage/user/"+url.PathEscape(userID), nil, &out); err != nil {
		return UserUsage{}, err
	}
	return out, nil
}

// Usage aggregates record counts across tables.
type Usage struct {
	Tables map[string]int `json:"tables"`
	Total  int            `json:"total"`
}

// TableUsage is the record count for a single table.
type TableUsage struct {
	Table string `json:"table"`
	Count int    `json:"count"`
}

// UserUsage is the per-table creation count for a single user.
type UserUsage struct {
	UserID string         `json:"user_id"`
	Tables map[string]int `json:"tables"`
	Total  int            `json:"total"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("build request url: %w", err)
	}
	target := c.base.ResolveReference(ref)

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set(c.header, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" && apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
