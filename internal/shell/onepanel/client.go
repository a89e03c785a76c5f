// Package onepanel provides a client for the 1Panel host-management API.
//
// Every request is signed with a token derived from the host's API key and
// the current time; every response is a {code, message, data} envelope.
// Failures come back as one of four kinds: ErrTransport, ErrUnauthorized,
// *APIError or ErrMalformedEnvelope.
package onepanel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/artpar/panelship/internal/core/domain"
)

// Default timeouts.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultTransferTimeout = 30 * time.Minute
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Client talks to one remote host.
type Client struct {
	baseURL    string
	credential string

	httpClient     *http.Client
	transferClient *http.Client // uploads and image loads
	logger         *slog.Logger
	now            func() time.Time
}

// Config holds client configuration.
type Config struct {
	Host       string // host name or address, scheme and trailing slash are stripped
	Port       int
	Credential string // panel API key
	Timeout    time.Duration
	// TransferTimeout bounds uploads and image loads, which move whole image archives.
	TransferTimeout time.Duration
}

// NewClient creates a new client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	transferTimeout := cfg.TransferTimeout
	if transferTimeout == 0 {
		transferTimeout = DefaultTransferTimeout
	}

	// Panel hosts sit on private networks; an environment proxy would only get in the way.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	return &Client{
		baseURL:        BaseURL(cfg.Host, cfg.Port),
		credential:     cfg.Credential,
		httpClient:     &http.Client{Timeout: timeout, Transport: transport},
		transferClient: &http.Client{Timeout: transferTimeout, Transport: transport},
		logger:         logger.With("component", "onepanel", "host", NormalizeHost(cfg.Host)),
		now:            time.Now,
	}
}

// =============================================================================
// Factory
// =============================================================================

// Factory builds clients for stored remote hosts.
type Factory struct {
	Timeout         time.Duration
	TransferTimeout time.Duration
	Logger          *slog.Logger
}

// ForHost returns a client for h.
func (f Factory) ForHost(h domain.RemoteHost) *Client {
	return NewClient(Config{
		Host:            h.Host,
		Port:            h.Port,
		Credential:      h.Credential,
		Timeout:         f.Timeout,
		TransferTimeout: f.TransferTimeout,
	}, f.Logger)
}

// =============================================================================
// Request Plumbing
// =============================================================================

// sign sets the token headers. Called immediately before each send.
func (c *Client) sign(req *http.Request) {
	ts := c.now().Unix()
	req.Header.Set(HeaderToken, Sign(c.credential, ts))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
}

// call sends a JSON request and decodes the envelope.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, NewRequestError(op, method, path, 0, "marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, NewRequestError(op, method, path, 0, "create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(op, path, req, c.httpClient)
}

// do signs and sends req, then maps the outcome onto the error kinds.
func (c *Client) do(op, path string, req *http.Request, hc *http.Client) (*Envelope, error) {
	c.sign(req)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "path", path, "error", err)
		return nil, NewRequestError(op, req.Method, path, 0, err.Error(), fmt.Errorf("%w: %w", ErrTransport, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewRequestError(op, req.Method, path, resp.StatusCode, "read response", fmt.Errorf("%w: %w", ErrTransport, err))
	}

	c.logger.Debug("request completed",
		"op", op,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, NewRequestError(op, req.Method, path, resp.StatusCode, "authentication failed", ErrUnauthorized)
	}

	env, err := DecodeEnvelope(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, NewRequestError(op, req.Method, path, resp.StatusCode, apiErr.Message, apiErr)
		}
		return nil, NewRequestError(op, req.Method, path, resp.StatusCode, truncate(body), ErrHTTPStatus)
	}
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, NewRequestError(op, req.Method, path, resp.StatusCode, apiErr.Message, apiErr)
		}
		return nil, NewRequestError(op, req.Method, path, resp.StatusCode, "decode envelope", err)
	}
	return env, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// =============================================================================
// Host Operations
// =============================================================================

// Ping checks that the host is reachable and accepts the credential.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "Ping", http.MethodGet, "/system/info", nil, nil)
	return err
}

// OSInfo returns the host's OS report.
func (c *Client) OSInfo(ctx context.Context) (*OSInfo, error) {
	env, err := c.call(ctx, "OSInfo", http.MethodGet, "/dashboard/base/os", nil, nil)
	if err != nil {
		return nil, err
	}
	var info OSInfo
	if err := env.Data.Value(&info); err != nil {
		return nil, NewRequestError("OSInfo", http.MethodGet, "/dashboard/base/os", 0, "decode os info", err)
	}
	return &info, nil
}

// =============================================================================
// Container Operations
// =============================================================================

// ListContainers returns one page of containers.
func (c *Client) ListContainers(ctx context.Context, q ContainerQuery) (*ContainerPage, error) {
	const path = "/containers/search"
	env, err := c.call(ctx, "ListContainers", http.MethodPost, path, nil, q.body())
	if err != nil {
		return nil, err
	}
	page := &ContainerPage{Total: env.Data.Total, Items: []Container{}}
	if err := env.Data.List(&page.Items); err != nil {
		return nil, NewRequestError("ListContainers", http.MethodPost, path, 0, "decode containers", err)
	}
	if env.Data.Kind == PayloadArray {
		page.Total = len(page.Items)
	}
	return page, nil
}

// OperateContainers applies op to the named containers.
func (c *Client) OperateContainers(ctx context.Context, names []string, op ContainerOperation) error {
	if _, err := ParseContainerOperation(string(op)); err != nil {
		return err
	}
	_, err := c.call(ctx, "OperateContainers", http.MethodPost, "/containers/operate", nil, map[string]any{
		"names":     names,
		"operation": op,
	})
	return err
}

// StartContainer starts one container.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	return c.OperateContainers(ctx, []string{name}, ContainerStart)
}

// StopContainer stops one container.
func (c *Client) StopContainer(ctx context.Context, name string) error {
	return c.OperateContainers(ctx, []string{name}, ContainerStop)
}

// RemoveContainer removes one container.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	return c.OperateContainers(ctx, []string{name}, ContainerRemove)
}

// ContainerLogs returns the last tail lines of a container's log.
func (c *Client) ContainerLogs(ctx context.Context, name string, tail int) (string, error) {
	const path = "/containers/search/log"
	if tail <= 0 {
		tail = 100
	}
	query := url.Values{}
	query.Set("container", name)
	query.Set("tail", strconv.Itoa(tail))

	env, err := c.call(ctx, "ContainerLogs", http.MethodPost, path, query, nil)
	if err != nil {
		return "", err
	}
	if env.Data.Kind == PayloadEmpty {
		return "", nil
	}
	logs, ok := env.Data.Text()
	if !ok {
		return "", NewRequestError("ContainerLogs", http.MethodPost, path, 0, "logs are not a string", ErrUnexpectedPayload)
	}
	return logs, nil
}

// =============================================================================
// Stack Operations
// =============================================================================

// ListStacks returns the compose stacks the panel manages.
func (c *Client) ListStacks(ctx context.Context) ([]domain.StackDescriptor, error) {
	const path = "/containers/compose/search"
	env, err := c.call(ctx, "ListStacks", http.MethodPost, path, nil, map[string]any{
		"page":     1,
		"pageSize": 100,
		"name":     "",
		"orderBy":  "created_at",
		"order":    "descending",
	})
	if err != nil {
		return nil, err
	}

	var items []stackItem
	if err := env.Data.List(&items); err != nil {
		return nil, NewRequestError("ListStacks", http.MethodPost, path, 0, "decode stacks", err)
	}
	stacks := make([]domain.StackDescriptor, 0, len(items))
	for _, it := range items {
		stacks = append(stacks, domain.StackDescriptor{
			Name:            it.Name,
			Path:            it.Path,
			ContainerNumber: it.ContainerNumber,
		})
	}
	return stacks, nil
}

// OperateStack applies op to the stack name whose definition lives at path.
func (c *Client) OperateStack(ctx context.Context, name, path string, op StackOperation) error {
	if _, err := ParseStackOperation(string(op)); err != nil {
		return err
	}
	_, err := c.call(ctx, "OperateStack", http.MethodPost, "/containers/compose/operate", nil, map[string]any{
		"name":      name,
		"path":      path,
		"operation": op,
		"withFile":  false,
	})
	return err
}

// UpdateStack replaces a stack's definition through the compose endpoint.
func (c *Client) UpdateStack(ctx context.Context, name, path, content string) error {
	_, err := c.call(ctx, "UpdateStack", http.MethodPost, "/containers/compose/update", nil, map[string]any{
		"name":    name,
		"path":    path,
		"content": content,
	})
	return err
}

// =============================================================================
// File Operations
// =============================================================================

// ReadFile returns the content of a file on the host.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	const endpoint = "/files/content"
	env, err := c.call(ctx, "ReadFile", http.MethodPost, endpoint, nil, map[string]any{"path": path})
	if err != nil {
		return "", err
	}
	var file struct {
		Content *string `json:"content"`
	}
	if err := env.Data.Value(&file); err != nil {
		return "", NewRequestError("ReadFile", http.MethodPost, endpoint, 0, "decode file", err)
	}
	if file.Content == nil {
		return "", NewRequestError("ReadFile", http.MethodPost, endpoint, 0, "no content field", ErrUnexpectedPayload)
	}
	return *file.Content, nil
}

// SaveFile writes content to a file on the host.
func (c *Client) SaveFile(ctx context.Context, path, content string) error {
	_, err := c.call(ctx, "SaveFile", http.MethodPost, "/files/save", nil, map[string]any{
		"path":    path,
		"content": content,
	})
	return err
}

// =============================================================================
// Image Operations
// =============================================================================

// ListImages returns the host's images. A non-empty base keeps only images
// with at least one tag of that base name.
func (c *Client) ListImages(ctx context.Context, base string) ([]Image, error) {
	const path = "/containers/image/all"
	env, err := c.call(ctx, "ListImages", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	images := []Image{}
	if err := env.Data.List(&images); err != nil {
		return nil, NewRequestError("ListImages", http.MethodGet, path, 0, "decode images", err)
	}
	if base == "" {
		return images, nil
	}

	filtered := []Image{}
	for _, img := range images {
		for _, tag := range img.Tags {
			if ref, err := domain.ParseImageReference(tag); err == nil && ref.Base == base {
				filtered = append(filtered, img)
				break
			}
		}
	}
	return filtered, nil
}

// RemoveImage removes an image by id or reference.
func (c *Client) RemoveImage(ctx context.Context, id string, force bool) error {
	_, err := c.call(ctx, "RemoveImage", http.MethodPost, "/containers/image/remove", nil, map[string]any{
		"names": []string{id},
		"force": force,
	})
	return err
}

// LoadImage loads an uploaded image archive into the host's image store.
func (c *Client) LoadImage(ctx context.Context, remotePath string) error {
	const path = "/containers/image/load"
	data, err := json.Marshal(map[string]any{"path": remotePath})
	if err != nil {
		return NewRequestError("LoadImage", http.MethodPost, path, 0, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return NewRequestError("LoadImage", http.MethodPost, path, 0, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do("LoadImage", path, req, c.transferClient)
	return err
}
