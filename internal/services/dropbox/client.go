package dropbox

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

	"voxbox/internal/services"
)

const (
	defaultAPIBaseURL     = "https://api.dropboxapi.com/2"
	defaultContentBaseURL = "https://content.dropboxapi.com/2"
	defaultHTTPTimeout    = 60 * time.Second

	// maxDownloadBytes bounds job-file downloads; job files are tiny text
	// files and anything larger is not a job file.
	maxDownloadBytes = 1 << 20
)

// HTTPDoer describes the HTTP client used by the Dropbox service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the subset of the Dropbox HTTP API the intake watcher and
// archiver need. Methods take the access token per call; token lifecycle is
// owned by the authorization manager.
type Client struct {
	apiBaseURL     string
	contentBaseURL string
	httpClient     HTTPDoer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURLs overrides the API endpoints (useful for tests/mocks).
func WithBaseURLs(apiBase, contentBase string) Option {
	return func(c *Client) {
		if apiBase = strings.TrimSpace(apiBase); apiBase != "" {
			c.apiBaseURL = strings.TrimRight(apiBase, "/")
		}
		if contentBase = strings.TrimSpace(contentBase); contentBase != "" {
			c.contentBaseURL = strings.TrimRight(contentBase, "/")
		}
	}
}

// NewClient constructs a Dropbox API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		apiBaseURL:     defaultAPIBaseURL,
		contentBaseURL: defaultContentBaseURL,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Entry is one item returned from a folder listing.
type Entry struct {
	Tag         string `json:".tag"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

// IsFile reports whether the entry is a regular file.
func (e Entry) IsFile() bool {
	return e.Tag == "file"
}

// ListResult is a page of folder entries plus the cursor for the next page.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// Account identifies the Dropbox account a token belongs to.
type Account struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
}

// APIError captures a structured error response from the Dropbox API.
type APIError struct {
	StatusCode int
	Summary    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dropbox api: http %d: %s", e.StatusCode, e.Summary)
}

// IsPathNotFound reports whether the error is a missing-path API error, which
// intake treats as an empty folder rather than a failure.
func IsPathNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Summary, "path/not_found")
}

// IsConflict reports whether the error is a name-conflict API error, which
// folder creation treats as already-exists.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Summary, "conflict")
}

// ListFolder lists the contents of a folder, starting a new cursor.
func (c *Client) ListFolder(ctx context.Context, token, path string) (ListResult, error) {
	var result ListResult
	body := map[string]any{"path": path, "recursive": false}
	if err := c.rpc(ctx, token, "/files/list_folder", body, &result); err != nil {
		return result, err
	}
	return result, nil
}

// ListFolderContinue fetches the next page of changes for a cursor.
func (c *Client) ListFolderContinue(ctx context.Context, token, cursor string) (ListResult, error) {
	var result ListResult
	body := map[string]any{"cursor": cursor}
	if err := c.rpc(ctx, token, "/files/list_folder/continue", body, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Download fetches a file's contents.
func (c *Client) Download(ctx context.Context, token, path string) ([]byte, error) {
	arg, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return nil, fmt.Errorf("dropbox download: encode arg: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBaseURL+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("dropbox download: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "intake", "download", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "download")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "intake", "download", "read body", err)
	}
	return data, nil
}

// Upload writes contents to the given path. When overwrite is false an
// existing file produces a conflict error.
func (c *Client) Upload(ctx context.Context, token, path string, contents []byte, overwrite bool) error {
	mode := "add"
	if overwrite {
		mode = "overwrite"
	}
	arg, err := json.Marshal(map[string]any{"path": path, "mode": mode, "autorename": false, "mute": true})
	if err != nil {
		return fmt.Errorf("dropbox upload: encode arg: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBaseURL+"/files/upload", bytes.NewReader(contents))
	if err != nil {
		return fmt.Errorf("dropbox upload: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archiving", "upload", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, "upload")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Move relocates a file, autorenaming on conflict.
func (c *Client) Move(ctx context.Context, token, fromPath, toPath string) error {
	body := map[string]any{"from_path": fromPath, "to_path": toPath, "autorename": true}
	return c.rpc(ctx, token, "/files/move_v2", body, nil)
}

// Delete removes a file or folder.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	body := map[string]any{"path": path}
	return c.rpc(ctx, token, "/files/delete_v2", body, nil)
}

// CreateFolder creates a folder; an existing folder is treated as success.
func (c *Client) CreateFolder(ctx context.Context, token, path string) error {
	body := map[string]any{"path": path, "autorename": false}
	err := c.rpc(ctx, token, "/files/create_folder_v2", body, nil)
	if err != nil && IsConflict(err) {
		return nil
	}
	return err
}

// CurrentAccount returns the account the token is bound to. It doubles as a
// token validity probe.
func (c *Client) CurrentAccount(ctx context.Context, token string) (Account, error) {
	var account Account
	if err := c.rpc(ctx, token, "/users/get_current_account", nil, &account); err != nil {
		return account, err
	}
	return account, nil
}

func (c *Client) rpc(ctx context.Context, token, endpoint string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dropbox rpc %s: encode body: %w", endpoint, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		// RPC endpoints without arguments still expect a JSON body.
		reader = strings.NewReader("null")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("dropbox rpc %s: new request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "intake", "rpc", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, endpoint)
	}
	if target == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("dropbox rpc %s: decode response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	summary := extractErrorSummary(body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Summary: summary}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		strings.Contains(summary, "invalid_access_token"),
		strings.Contains(summary, "expired_access_token"):
		return services.Wrap(services.ErrAuthorization, "intake", operation, "token rejected", apiErr)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "intake", operation, "upstream unavailable", apiErr)
	default:
		return apiErr
	}
}

func extractErrorSummary(body []byte) string {
	var payload struct {
		ErrorSummary string `json:"error_summary"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrorSummary != "" {
		return payload.ErrorSummary
	}
	return strings.TrimSpace(string(body))
}
