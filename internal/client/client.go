// Package client talks to a snipperd server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("snipperd: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Message extracts the "error" field of a JSON error body, falling back to
// the raw body.
func (e *APIError) Message() string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(e.Body)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	stream     *http.Client
	logger     *slog.Logger

	// reconnect backoff for progress streams
	minBackoff    time.Duration
	maxBackoff    time.Duration
	maxReconnects int
}

func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// event streams and exports run as long as they need to
		stream:        &http.Client{},
		logger:        logger,
		minBackoff:    250 * time.Millisecond,
		maxBackoff:    5 * time.Second,
		maxReconnects: 5,
	}
}

func (c *HTTPClient) ListProjects(ctx context.Context) ([]*project.Project, error) {
	var out []*project.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateProject(ctx context.Context, name, videoURL string) (*project.Project, error) {
	body := map[string]string{"name": name, "url": videoURL}
	var out project.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get loads a project. A missing project yields project.ErrNotFound.
func (c *HTTPClient) Get(ctx context.Context, id string) (*project.Project, error) {
	var out project.Project
	if err := c.doJSON(ctx, http.MethodGet, projectPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Put stores p, returning the server's copy.
func (c *HTTPClient) Put(ctx context.Context, p *project.Project) (*project.Project, error) {
	var out project.Project
	if err := c.doJSON(ctx, http.MethodPut, projectPath(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteProject(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

// StartDownload asks the server to fetch the project's video. A download
// that is already running yields progress.ErrConflict.
func (c *HTTPClient) StartDownload(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodPost, projectPath(id)+"/download", nil, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusConflict {
		return progress.ErrConflict
	}
	return err
}

// Export renders the project's clips on the server and copies the result
// into w.
func (c *HTTPClient) Export(ctx context.Context, id string, f export.Format, w io.Writer) error {
	u := c.baseURL + projectPath(id) + "/export?format=" + url.QueryEscape(string(f))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	c.logger.Info("export received", "project_id", id, "format", f, "bytes", n)
	return nil
}

// VideoURL is where the server streams the project's video.
func (c *HTTPClient) VideoURL(id string) string {
	return c.baseURL + "/projects/" + url.PathEscape(id) + "/video.mp4"
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/api/projects/") {
		apiErr := readAPIError(resp)
		return fmt.Errorf("%w: %s", project.ErrNotFound, apiErr.Message())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}

func projectPath(id string) string {
	return "/api/projects/" + url.PathEscape(id)
}
