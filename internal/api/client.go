// Package api is a client for the dataset backend's HTTP interface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("api: not found")

// StatusError is returned for any non-2xx response other than 404.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: server returned status %d", e.Code)
	}
	return fmt.Sprintf("api: server returned status %d: %s", e.Code, e.Detail)
}

type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 5 * time.Minute},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL joins escaped path segments onto the server address.
func (c *Client) URL(segments ...string) string {
	u := *c.base
	parts := make([]string, len(segments))
	raw := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s
		raw[i] = url.PathEscape(s)
	}
	u.Path = c.base.Path + "/" + strings.Join(parts, "/")
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(raw, "/")
	return u.String()
}

// EventsURL is the server-sent event stream address.
func (c *Client) EventsURL() string {
	return c.URL("api", "sse", "events")
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Code: resp.StatusCode, Detail: detail(data)}
}

// detail extracts the message from an error body. The backend sends
// {"detail": "..."}; validation errors carry a list instead.
func detail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}

// HasStatus reports whether err is a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	SSEClients int    `json:"sse_clients"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, c.URL("health"), nil, "", &h)
	return h, err
}

// Result is the common {"status", "message"} acknowledgement.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) ListRawImages(ctx context.Context) ([]string, error) {
	var out struct {
		Files []string `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, c.URL("api", "raw-images"), nil, "", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) FetchRawImage(ctx context.Context, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, c.URL("api", "raw-image", filename), nil, "", &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) DeleteRawImage(ctx context.Context, filename string) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodDelete, c.URL("api", "raw-image", filename), nil, "", &r)
	return r, err
}

func (c *Client) ClearRawImages(ctx context.Context) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodDelete, c.URL("api", "raw-images", "clear"), nil, "", &r)
	return r, err
}

// UploadFile is one file in a multipart upload.
type UploadFile struct {
	Name string
	Data []byte
}

type ImportResult struct {
	Status        string `json:"status"`
	ImportedCount int    `json:"imported_count"`
	SkippedCount  int    `json:"skipped_count"`
}

// UploadFolder replaces the workspace with files. sourceFolder is only used
// for display in the server's import events.
func (c *Client) UploadFolder(ctx context.Context, sourceFolder string, files []UploadFile) (ImportResult, error) {
	var r ImportResult
	body, contentType, err := buildMultipart(map[string]string{"source_folder": sourceFolder}, "files", files)
	if err != nil {
		return r, err
	}
	err = c.do(ctx, http.MethodPost, c.URL("api", "import-upload"), body, contentType, &r)
	return r, err
}

type ProcessedSet struct {
	BaseName    string `json:"base_name"`
	ImageFile   string `json:"image_file"`
	CaptionFile string `json:"caption_file"`
	Caption     string `json:"caption"`
	Created     string `json:"created"`
}

func (c *Client) ListProcessedSets(ctx context.Context) ([]ProcessedSet, error) {
	var out struct {
		Sets  []ProcessedSet `json:"sets"`
		Count int            `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, c.URL("api", "processed-images"), nil, "", &out); err != nil {
		return nil, err
	}
	return out.Sets, nil
}

func (c *Client) FetchProcessedImage(ctx context.Context, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, c.URL("api", "processed-image", filename), nil, "", &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) GetCaption(ctx context.Context, baseName string) (string, error) {
	var out struct {
		Caption string `json:"caption"`
	}
	if err := c.do(ctx, http.MethodGet, c.URL("api", "processed-caption", baseName), nil, "", &out); err != nil {
		return "", err
	}
	return out.Caption, nil
}

func (c *Client) UpdateCaption(ctx context.Context, baseName, caption string) (Result, error) {
	var r Result
	payload, err := json.Marshal(map[string]string{"caption": caption})
	if err != nil {
		return r, fmt.Errorf("encode caption: %w", err)
	}
	err = c.do(ctx, http.MethodPut, c.URL("api", "processed-caption", baseName),
		bytes.NewReader(payload), "application/json", &r)
	return r, err
}

type DeleteSetResult struct {
	Result
	DeletedFiles []string `json:"deleted_files"`
}

func (c *Client) DeleteProcessedSet(ctx context.Context, baseName string) (DeleteSetResult, error) {
	var r DeleteSetResult
	err := c.do(ctx, http.MethodDelete, c.URL("api", "processed-set", baseName), nil, "", &r)
	return r, err
}

type ProcessResult struct {
	Status         string `json:"status"`
	OutputFilename string `json:"output_filename"`
	Message        string `json:"message"`
}

// Process stores a cropped PNG and its caption as the next numbered set.
func (c *Client) Process(ctx context.Context, png []byte, originalFilename, caption string) (ProcessResult, error) {
	var r ProcessResult
	fields := map[string]string{
		"original_filename": originalFilename,
		"caption":           caption,
	}
	name := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename)) + ".png"
	body, contentType, err := buildMultipart(fields, "file", []UploadFile{{Name: name, Data: png}})
	if err != nil {
		return r, err
	}
	err = c.do(ctx, http.MethodPost, c.URL("api", "process"), body, contentType, &r)
	return r, err
}

// GenerateCaption asks the backend's vision model to describe an image.
func (c *Client) GenerateCaption(ctx context.Context, filename string, image []byte) (string, error) {
	var out struct {
		Status  string `json:"status"`
		Caption string `json:"caption"`
	}
	body, contentType, err := buildMultipart(nil, "file", []UploadFile{{Name: filename, Data: image}})
	if err != nil {
		return "", err
	}
	if err := c.do(ctx, http.MethodPost, c.URL("api", "generate-caption"), body, contentType, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Caption), nil
}
