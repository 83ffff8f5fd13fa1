// Package extraction is the client for the policy extraction REST API.
package extraction

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
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lender-policy-review/internal/metrics"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/utils"
)

// APIPrefix is the path of the extraction resource under the base URL.
const APIPrefix = "/api/v1/policy-extraction"

// GenericErrorMessage is shown when a failure carries no server detail.
const GenericErrorMessage = "Failed to process request. Please try again."

// Operation names used for logging and metrics.
const (
	OpUpload  = "upload"
	OpList    = "list"
	OpGet     = "get"
	OpUpdate  = "update"
	OpApprove = "approve"
	OpDelete  = "delete"
)

// APIError is a non-2xx response from the extraction service.
type APIError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
}

// Message converts any client error into operator-facing text: the server's
// detail verbatim when present, otherwise the generic fallback.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return GenericErrorMessage
}

// Client calls the extraction service. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the service rooted at baseURL.
// No request timeout is set; callers bound calls through the context.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrDefault(c.logger, "extraction-client")
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends a policy PDF for extraction.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader, opts models.UploadOptions) (*models.ExtractionResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	query := url.Values{}
	query.Set("enhance", strconv.FormatBool(opts.Enhance))
	query.Set("validate_extraction", strconv.FormatBool(opts.ValidateExtraction))

	var result models.ExtractionResult
	err = c.do(ctx, OpUpload, http.MethodPost, "/upload?"+query.Encode(), writer.FormDataContentType(), &body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns all extractions known to the service.
func (c *Client) List(ctx context.Context) (*models.ExtractionList, error) {
	var list models.ExtractionList
	if err := c.do(ctx, OpList, http.MethodGet, "", "", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Get fetches one extraction.
func (c *Client) Get(ctx context.Context, id string) (*models.ExtractionResult, error) {
	var result models.ExtractionResult
	if err := c.do(ctx, OpGet, http.MethodGet, "/"+url.PathEscape(id), "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Update sends edited lender and/or programs and returns the revalidated result.
func (c *Client) Update(ctx context.Context, id string, req models.UpdateExtractionRequest) (*models.ExtractionResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update request: %w", err)
	}

	var result models.ExtractionResult
	if err := c.do(ctx, OpUpdate, http.MethodPut, "/"+url.PathEscape(id), "application/json", bytes.NewReader(payload), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Approve persists the extraction as a lender with programs and rules.
func (c *Client) Approve(ctx context.Context, id string) (*models.ApprovalResponse, error) {
	var resp models.ApprovalResponse
	if err := c.do(ctx, OpApprove, http.MethodPost, "/"+url.PathEscape(id)+"/approve", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete discards an extraction on the service.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, OpDelete, http.MethodDelete, "/"+url.PathEscape(id), "", nil, nil)
}

// do performs one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, contentType, body, out)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ExtractionAPIRequests.WithLabelValues(op, outcome).Inc()
	metrics.ExtractionAPIDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("Extraction API call failed",
			zap.String("operation", op),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("Extraction API call completed",
		zap.String("operation", op),
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// readDetail extracts the "detail" field from an error body. FastAPI-style
// validation errors carry a list of {msg} objects instead of a string.
func readDetail(r io.Reader) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
