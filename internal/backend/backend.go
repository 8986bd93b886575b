// Package backend talks to the remote PDF processing API. Every tool posts a
// multipart form to its endpoint and receives the processed artifact back.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"pdfmaster/internal/tool"
)

const (
	defaultPartContentType = "application/octet-stream"
	maxErrorBodyBytes      = 1 << 20
)

// Upload is one file part of a submission.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request describes one submission to the backend.
type Request struct {
	Endpoint  string
	FileField string
	Files     []Upload
	Fields    []tool.Field
}

// Response is a successful backend reply. The caller must close Body.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// StatusError is returned for non-2xx replies. Message is the backend's
// "detail" text when present, otherwise the HTTP status text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// Client posts submissions to a configured base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the backend at baseURL. Deadlines come from the
// request context, not from the http.Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Process issues exactly one POST for req. It returns once response headers
// have arrived; the body is left for the caller to consume.
func (c *Client) Process(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := EncodeForm(req)
	if err != nil {
		return nil, err
	}

	target := c.baseURL + req.Endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	httpResponse, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn().Str("url", target).Err(err).Msg("backend request failed")
		return nil, fmt.Errorf("post %s: %w", req.Endpoint, err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		defer func() { _ = httpResponse.Body.Close() }()
		statusErr := &StatusError{
			Code:    httpResponse.StatusCode,
			Message: errorMessage(httpResponse),
		}
		log.Warn().Str("url", target).Int("status", httpResponse.StatusCode).Str("detail", statusErr.Message).Msg("backend rejected request")
		return nil, statusErr
	}

	return &Response{
		Body:          httpResponse.Body,
		ContentType:   httpResponse.Header.Get("Content-Type"),
		ContentLength: httpResponse.ContentLength,
	}, nil
}

// EncodeForm renders req as a multipart body: one part per file under
// req.FileField followed by the option fields in order.
func EncodeForm(req Request) (io.Reader, string, error) {
	if len(req.Files) == 0 {
		return nil, "", errors.New("no files to upload")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range req.Files {
		part, err := mw.CreatePart(filePartHeader(req.FileField, f))
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	for _, field := range req.Fields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(field string, f Upload) textproto.MIMEHeader {
	contentType := f.ContentType
	if contentType == "" {
		contentType = defaultPartContentType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)
	return h
}

// errorMessage prefers a string "detail" from a JSON body and falls back to
// the status text.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if detail, ok := payload.Detail.(string); ok && detail != "" {
			return detail
		}
	}
	return statusText(resp)
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if text == "" {
		text = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}
	return text
}
