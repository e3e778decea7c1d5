package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Logger interface {
	Printf(format string, args ...any)
}

// APIError is a non-2xx response that survived the retry policy.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api %d: %s", e.StatusCode, e.Message)
}

// RetryPolicy bounds transient-failure retries for one call. Delay grows
// linearly as BaseDelay * attempt. HTTP 429 is handled outside the policy:
// the server-signaled wait is honored and the attempt is not counted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

type Options struct {
	BaseURL        string
	Token          string
	APIVersion     string
	HTTPClient     *http.Client
	ReadRetry      RetryPolicy
	WriteRetry     RetryPolicy
	RateLimitDelay time.Duration
	Logger         Logger
}

// Client talks the target store's REST protocol. It keeps no state between
// calls beyond the shared connection pool of its http.Client.
type Client struct {
	baseURL        string
	token          string
	apiVersion     string
	httpClient     *http.Client
	readRetry      RetryPolicy
	writeRetry     RetryPolicy
	rateLimitDelay time.Duration
	logger         Logger
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	readRetry := opts.ReadRetry
	if readRetry.MaxAttempts <= 0 {
		readRetry.MaxAttempts = 3
	}
	if readRetry.BaseDelay <= 0 {
		readRetry.BaseDelay = time.Second
	}
	// The write path tolerates more attempts: a mid-batch write failure is
	// costlier to recover from than a failed read.
	writeRetry := opts.WriteRetry
	if writeRetry.MaxAttempts <= 0 {
		writeRetry.MaxAttempts = 5
	}
	if writeRetry.BaseDelay <= 0 {
		writeRetry.BaseDelay = time.Second
	}
	rateLimitDelay := opts.RateLimitDelay
	if rateLimitDelay <= 0 {
		rateLimitDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:        baseURL,
		token:          strings.TrimSpace(opts.Token),
		apiVersion:     apiVersion,
		httpClient:     httpClient,
		readRetry:      readRetry,
		writeRetry:     writeRetry,
		rateLimitDelay: rateLimitDelay,
		logger:         logger,
	}
}

func (c *Client) QueryDatabase(ctx context.Context, databaseID string, req QueryRequest) (QueryResponse, error) {
	var out QueryResponse
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/query", url.PathEscape(databaseID)), nil, req, &out, c.readRetry)
	return out, err
}

func (c *Client) CreatePage(ctx context.Context, req CreatePageRequest) (Page, error) {
	var out Page
	err := c.call(ctx, http.MethodPost, "/v1/pages", nil, req, &out, c.writeRetry)
	return out, err
}

func (c *Client) UpdatePage(ctx context.Context, pageID string, req UpdatePageRequest) error {
	return c.call(ctx, http.MethodPatch, fmt.Sprintf("/v1/pages/%s", url.PathEscape(pageID)), nil, req, nil, c.writeRetry)
}

func (c *Client) ListBlockChildren(ctx context.Context, blockID, cursor string, pageSize int) (BlockChildrenResponse, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var out BlockChildrenResponse
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/blocks/%s/children", url.PathEscape(blockID)), q, nil, &out, c.readRetry)
	return out, err
}

func (c *Client) AppendBlockChildren(ctx context.Context, blockID string, children []Block) error {
	req := AppendChildrenRequest{Children: children}
	return c.call(ctx, http.MethodPatch, fmt.Sprintf("/v1/blocks/%s/children", url.PathEscape(blockID)), nil, req, nil, c.writeRetry)
}

func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/blocks/%s", url.PathEscape(blockID)), nil, nil, nil, c.writeRetry)
}

func (c *Client) call(
	ctx context.Context,
	method, requestPath string,
	query url.Values,
	body any,
	out any,
	policy RetryPolicy,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	requestURL := c.baseURL + requestPath
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	attempts := 0
	for {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.apiVersion)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			attempts++
			if attempts >= policy.MaxAttempts {
				return err
			}
			if waitErr := sleepContext(ctx, policy.delay(attempts)); waitErr != nil {
				return waitErr
			}
			continue
		}

		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			// Rate limiting is expected and recoverable: wait out the
			// server-signaled interval without spending an attempt. The
			// caller's context deadline is the only upper bound.
			wait := parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
			if wait <= 0 {
				wait = c.rateLimitDelay
			}
			c.logger.Printf("notion: rate limited on %s %s, sleeping %s", method, requestPath, wait)
			if waitErr := sleepContext(ctx, wait); waitErr != nil {
				return waitErr
			}
			continue
		}

		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			attempts++
			if attempts < policy.MaxAttempts {
				if waitErr := sleepContext(ctx, policy.delay(attempts)); waitErr != nil {
					return waitErr
				}
				continue
			}
		}

		return newAPIError(resp.StatusCode, payloadBytes)
	}
}

func newAPIError(statusCode int, payload []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(payload)),
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &parsed) == nil {
		apiErr.Code = parsed.Code
		if strings.TrimSpace(parsed.Message) != "" {
			apiErr.Message = parsed.Message
		}
	}
	return apiErr
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
