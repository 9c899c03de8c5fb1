// Package client is the Go client for the e-signature operator API.
package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

const userAgent = "esign-go-client/0.1.0"

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Error is a non-2xx answer from the service.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Details    map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("esign: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an *Error carrying code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New returns a client for the service at baseURL authenticating with an operator bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if c.retry.BaseDelay <= 0 {
		c.retry.BaseDelay = 200 * time.Millisecond
	}
	if c.retry.MaxDelay <= 0 {
		c.retry.MaxDelay = 5 * time.Second
	}
	return c
}

func NewIdempotencyKey() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type Generated struct {
	Document domain.GeneratedDocument `json:"document"`
	Token    string                   `json:"token"`
	SignURL  string                   `json:"sign_url"`
}

type DocumentResult struct {
	Document domain.GeneratedDocument `json:"document"`
	SignURL  string                   `json:"sign_url,omitempty"`
}

// CertificateResult carries the certificate as returned by the service.
// Bundle is present on the operator endpoint and can be verified offline.
type CertificateResult struct {
	Certificate json.RawMessage `json:"certificate"`
	Bundle      json.RawMessage `json:"bundle,omitempty"`
	Verified    bool            `json:"verified"`
}

func (c *Client) Preview(ctx context.Context, modelID, employeeID string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := "/esign/v1/models/" + url.PathEscape(modelID) + "/preview"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"employee_id": employeeID}, nil, true, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Generate creates a draft document. Requests carrying an idempotency key are retried.
func (c *Client) Generate(ctx context.Context, modelID, employeeID string, expirationDays int, idempotencyKey string) (*Generated, error) {
	body := map[string]any{"model_id": modelID, "employee_id": employeeID}
	if expirationDays > 0 {
		body["expiration_days"] = expirationDays
	}
	var headers map[string]string
	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	var out Generated
	if err := c.do(ctx, http.MethodPost, "/esign/v1/documents", body, headers, key != "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Send(ctx context.Context, documentID string) (*DocumentResult, error) {
	return c.documentAction(ctx, documentID, "send", nil)
}

func (c *Client) RequestSignature(ctx context.Context, documentID string) (*DocumentResult, error) {
	return c.documentAction(ctx, documentID, "request-signature", nil)
}

func (c *Client) Cancel(ctx context.Context, documentID, reason string) (*DocumentResult, error) {
	return c.documentAction(ctx, documentID, "cancel", map[string]any{"reason": reason})
}

func (c *Client) documentAction(ctx context.Context, documentID, action string, body any) (*DocumentResult, error) {
	var out DocumentResult
	path := "/esign/v1/documents/" + url.PathEscape(documentID) + ":" + action
	if err := c.do(ctx, http.MethodPost, path, body, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, documentID string) (*DocumentResult, error) {
	var out DocumentResult
	if err := c.do(ctx, http.MethodGet, "/esign/v1/documents/"+url.PathEscape(documentID), nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListByEmployee(ctx context.Context, employeeID string) ([]domain.GeneratedDocument, error) {
	var out struct {
		Documents []domain.GeneratedDocument `json:"documents"`
	}
	q := url.Values{"employee_id": {employeeID}}
	if err := c.do(ctx, http.MethodGet, "/esign/v1/documents?"+q.Encode(), nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) Events(ctx context.Context, documentID string) ([]domain.Event, error) {
	var out struct {
		Events []domain.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/esign/v1/documents/"+url.PathEscape(documentID)+"/events", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) Certificate(ctx context.Context, documentID string) (*CertificateResult, error) {
	var out CertificateResult
	if err := c.do(ctx, http.MethodGet, "/esign/v1/documents/"+url.PathEscape(documentID)+"/certificate", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, retryable bool, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < attempts && ctx.Err() == nil {
				if err := sleepWithBackoff(ctx, c.retry, attempt, ""); err != nil {
					return err
				}
				continue
			}
			return err
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			if err := sleepWithBackoff(ctx, c.retry, attempt, resp.Header.Get("Retry-After")); err != nil {
				return err
			}
			continue
		}
		return parseError(resp.StatusCode, respBody)
	}
	return errors.New("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

func sleepWithBackoff(ctx context.Context, cfg RetryConfig, attempt int, retryAfter string) error {
	d := backoff(cfg, attempt, retryAfter)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoff(cfg RetryConfig, attempt int, retryAfter string) time.Duration {
	if sec, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > cfg.MaxDelay {
			d = cfg.MaxDelay
		}
		return d
	}
	ceiling := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(cfg.MaxDelay) {
		ceiling = float64(cfg.MaxDelay)
	}
	if ceiling < 1 {
		ceiling = 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(ceiling)))
	if err != nil {
		return time.Duration(ceiling)
	}
	return time.Duration(n.Int64())
}

func parseError(status int, body []byte) error {
	out := &Error{StatusCode: status}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	out.RequestID, _ = obj["request_id"].(string)
	if inner, ok := obj["error"].(map[string]any); ok {
		obj = inner
	}
	out.Code, _ = obj["code"].(string)
	out.Message, _ = obj["message"].(string)
	if d, ok := obj["details"].(map[string]any); ok {
		out.Details = d
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}
