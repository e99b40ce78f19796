// Package httpremote carries push and pull traffic between a synckit client
// and an authority over HTTP with JSON bodies and optional gzip.
package httpremote

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/synckit"
)

const component = "httpremote"

// Client implements synckit.Remote against a Handler. Push rejections
// (HTTP 422) come back as *synckit.Rejection[E] so that the rejection
// payload becomes the entity's LastSyncedError.
type Client[D, E any] struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	options *ClientOptions
}

var _ synckit.Remote[struct{}] = (*Client[struct{}, string])(nil)

// newHTTPClient creates an HTTP client that leaves decompression to us so
// both compressed and decompressed size limits can be enforced.
func newHTTPClient(opts *ClientOptions) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = true
	return &http.Client{Transport: tr, Timeout: opts.RequestTimeout}
}

// NewClient creates a client for the authority served at baseURL. If
// httpClient is nil one is built from the options.
func NewClient[D, E any](baseURL string, httpClient *http.Client, logger *slog.Logger, opts ...ClientOption) *Client[D, E] {
	options := applyClientOptions(opts...)
	if options.MaxResponseSize <= 0 {
		options.MaxResponseSize = 10 * 1024 * 1024
	}
	if options.MaxDecompressedResponseSize <= 0 {
		options.MaxDecompressedResponseSize = 20 * 1024 * 1024
	}
	if httpClient == nil {
		httpClient = newHTTPClient(options)
	}
	if logger == nil {
		logger = logging.Default().Logger
	}
	return &Client[D, E]{
		client:  httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", component),
		options: options,
	}
}

// BaseURL returns the base URL of the authority.
func (c *Client[D, E]) BaseURL() string {
	return c.baseURL
}

// PushEntity sends PUT {base}/entities/{id} and decodes the stored value.
func (c *Client[D, E]) PushEntity(ctx context.Context, id string, value D) (D, error) {
	var zero D

	payload, err := json.Marshal(value)
	if err != nil {
		return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, fmt.Errorf("failed to marshal entity %q: %w", id, err))
	}

	body, encoding, err := c.encode(payload)
	if err != nil {
		return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, err)
	}

	endpoint := c.baseURL + "/entities/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	c.acceptEncoding(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		c.logger.Error("Push request failed",
			slog.String("entity_id", id),
			slog.String("error", err.Error()))
		return zero, syncErrors.NewRetryable(syncErrors.OpPush, fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	raw, err := c.readBody(resp)
	if err != nil {
		return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var stored D
		if err := json.Unmarshal(raw, &stored); err != nil {
			return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, fmt.Errorf("failed to decode stored entity: %w", err))
		}
		c.logger.Debug("Pushed entity", slog.String("entity_id", id), slog.Int("size", len(payload)))
		return stored, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		var rejected rejectionResponse[E]
		if err := json.Unmarshal(raw, &rejected); err != nil {
			return zero, syncErrors.NewWithComponent(syncErrors.OpPush, component, fmt.Errorf("failed to decode rejection: %w", err))
		}
		message := rejected.Message
		if message == "" {
			message = "rejected by authority"
		}
		c.logger.Debug("Entity rejected", slog.String("entity_id", id), slog.String("message", message))
		return zero, &synckit.Rejection[E]{
			Payload: rejected.Error,
			Err:     syncErrors.NewRejectedError(syncErrors.OpPush, errors.New(message)),
		}

	default:
		return zero, statusError(syncErrors.OpPush, resp.StatusCode, raw)
	}
}

// FetchAll sends GET {base}/entities and decodes the authority's dataset.
func (c *Client[D, E]) FetchAll(ctx context.Context) (map[string]D, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/entities", nil)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpPull, component, fmt.Errorf("failed to create request: %w", err))
	}
	c.acceptEncoding(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Error("Fetch request failed", slog.String("error", err.Error()))
		return nil, syncErrors.NewRetryable(syncErrors.OpPull, fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	raw, err := c.readBody(resp)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpPull, component, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(syncErrors.OpPull, resp.StatusCode, raw)
	}

	var snapshot snapshotResponse[D]
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpPull, component, fmt.Errorf("failed to decode entities: %w", err))
	}
	if snapshot.Entities == nil {
		snapshot.Entities = map[string]D{}
	}
	c.logger.Debug("Fetched entities", slog.Int("count", len(snapshot.Entities)))
	return snapshot.Entities, nil
}

func (c *Client[D, E]) encode(payload []byte) ([]byte, string, error) {
	if !c.options.CompressionEnabled || len(payload) <= c.options.GzipMinBytes {
		return payload, "", nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return nil, "", fmt.Errorf("failed to compress request: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	c.logger.Debug("Compressed request",
		slog.Int("original_size", len(payload)),
		slog.Int("compressed_size", buf.Len()))
	return buf.Bytes(), "gzip", nil
}

func (c *Client[D, E]) acceptEncoding(req *http.Request) {
	if c.options.CompressionEnabled {
		req.Header.Set("Accept-Encoding", "gzip")
	}
}

func (c *Client[D, E]) readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > c.options.MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes exceeds limit of %d", resp.ContentLength, c.options.MaxResponseSize)
	}
	r, cleanup, err := bodyReader(resp.Body, resp.Header.Get("Content-Encoding"), c.options.MaxResponseSize, c.options.MaxDecompressedResponseSize)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, nil
}

// statusError converts a non-success response into a SyncError. Server
// errors and throttling are retryable, other client errors are not.
func statusError(op syncErrors.Operation, status int, raw []byte) error {
	var body errorResponse
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	err := fmt.Errorf("server error (status %d): %s", status, message)
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return syncErrors.NewRetryable(op, err)
	}
	return syncErrors.NewWithComponent(op, component, err)
}
