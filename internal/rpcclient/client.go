// Package rpcclient is the thin typed façade over the remote platform's
// JSON RPC surface consumed by chunk and remotefile: project resolution,
// folder creation, file-object create/close/describe, part-URL issuance,
// and object search. One small struct wraps a shared *http.Client plus
// marshal/unmarshal helpers, with semantic retry layered on top.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/objectvault/upload-agent/internal/common"
)

// Client is the minimal surface the core consumes. Every method is
// synchronous from the caller's view; the underlying transport is
// thread-safe and reused across calls.
type Client interface {
	ResolveProject(ctx context.Context, spec string) (projectID string, err error)
	CreateFolder(ctx context.Context, projectID, folder string) error
	FindResumable(ctx context.Context, projectID, signature string) ([]ResumeCandidate, error)
	CreateFile(ctx context.Context, projectID, folder, name, mimeType string, properties map[string]string) (fileID string, err error)
	FileDescribe(ctx context.Context, fileID string) (FileDescription, error)
	FileUpload(ctx context.Context, fileID string, index int) (url string, err error)
	CloseFile(ctx context.Context, fileID string) error
	GetFileState(ctx context.Context, fileID string) (string, error)
}

// HTTPClient is the default Client implementation: plain JSON-over-HTTPS
// against a single RPC endpoint, bearer-token authenticated.
type HTTPClient struct {
	BaseURL     string
	Token       string
	SessionID   string
	HTTP        *http.Client
	RetryConfig common.NetworkRetryConfig
	Logger      common.Logger
}

// NewHTTPClient builds an HTTPClient with a generated session id and the
// teacher's default retry policy.
func NewHTTPClient(baseURL, token string, httpClient *http.Client, logger common.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{
		BaseURL:     baseURL,
		Token:       token,
		SessionID:   uuid.NewString(),
		HTTP:        httpClient,
		RetryConfig: common.DefaultNetworkRetryConfig(),
		Logger:      logger,
	}
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := common.WithNetworkRetry(ctx, c.RetryConfig, isRetryableRPCError, func() (struct{}, error) {
		return struct{}{}, c.callOnce(ctx, method, path, body, out)
	})
	return err
}

func (c *HTTPClient) callOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal rpc request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("X-Session-Id", c.SessionID)

	common.Logf(c.Logger, common.LogDebug, "rpc %s %s", method, path)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "perform rpc request")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read rpc response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrap(err, "decode rpc response")
	}
	return nil
}

// isRetryableRPCError retries everything except context cancellation; the
// façade's job is to absorb transient RPC flakiness, while a truly fatal
// RPC response (schema violation, 4xx business error) still surfaces after
// MaxRetries attempts as an common.RPCError at the call site.
func isRetryableRPCError(err error) bool {
	return errors.Cause(err) != context.Canceled
}

func (c *HTTPClient) ResolveProject(ctx context.Context, spec string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/system/resolveProject", map[string]string{"spec": spec}, &out); err != nil {
		return "", common.NewRPCError("resolve_project", err)
	}
	return out.ID, nil
}

func (c *HTTPClient) CreateFolder(ctx context.Context, projectID, folder string) error {
	err := c.call(ctx, http.MethodPost, "/system/createFolder", map[string]string{
		"project": projectID,
		"folder":  folder,
	}, nil)
	if err != nil {
		return common.NewRPCError("create_folder", err)
	}
	return nil
}

func (c *HTTPClient) FindResumable(ctx context.Context, projectID, signature string) ([]ResumeCandidate, error) {
	var out []ResumeCandidate
	body := map[string]string{"project": projectID, "signature": signature}
	if err := c.call(ctx, http.MethodPost, "/system/findResumable", body, &out); err != nil {
		return nil, common.NewRPCError("find_resumable", err)
	}
	return out, nil
}

func (c *HTTPClient) CreateFile(ctx context.Context, projectID, folder, name, mimeType string, properties map[string]string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]interface{}{
		"project":    projectID,
		"folder":     folder,
		"name":       name,
		"mimeType":   mimeType,
		"properties": properties,
	}
	if err := c.call(ctx, http.MethodPost, "/file/create", body, &out); err != nil {
		return "", common.NewRPCError("create_file", err)
	}
	return out.ID, nil
}

func (c *HTTPClient) FileDescribe(ctx context.Context, fileID string) (FileDescription, error) {
	var out FileDescription
	if err := c.call(ctx, http.MethodGet, "/file/"+fileID+"/describe", nil, &out); err != nil {
		return FileDescription{}, common.NewRPCError("file_describe", err)
	}
	return out, nil
}

func (c *HTTPClient) FileUpload(ctx context.Context, fileID string, index int) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	body := map[string]int{"index": index}
	if err := c.call(ctx, http.MethodPost, "/file/"+fileID+"/upload", body, &out); err != nil {
		return "", common.NewRPCError("file_upload", err)
	}
	return out.URL, nil
}

func (c *HTTPClient) CloseFile(ctx context.Context, fileID string) error {
	if err := c.call(ctx, http.MethodPost, "/file/"+fileID+"/close", nil, nil); err != nil {
		return common.NewRPCError("close_file", err)
	}
	return nil
}

func (c *HTTPClient) GetFileState(ctx context.Context, fileID string) (string, error) {
	var out struct {
		State string `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/file/"+fileID+"/state", nil, &out); err != nil {
		return "", common.NewRPCError("get_file_state", err)
	}
	return out.State, nil
}
