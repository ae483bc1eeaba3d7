package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	baseURL    = "https://gmail.googleapis.com/gmail/v1"
	maxRetries = 8   // covers a few minutes of transient outages
	maxBackoff = 300 // max backoff in seconds
)

// Client implements the remote mailbox API over HTTP.
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	userID      string // "me" for the authenticated user
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// NewClient creates a new API client authenticated by the token source.
func NewClient(tokenSource oauth2.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: oauth2.NewClient(context.Background(), tokenSource),
		userID:     "me",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(5.0)
	}

	return c
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return nil
}

// request makes an HTTP request with rate limiting and retry logic, and maps
// failures onto the typed error taxonomy. bodyBytes can be nil.
func (c *Client) request(ctx context.Context, op Operation, method, path string, bodyBytes []byte) ([]byte, error) {
	if err := c.rateLimiter.Acquire(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqURL := baseURL + path

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			c.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "path", path)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Fresh reader per attempt so the body can be re-read on retry.
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransientServiceError{Err: err}
			continue // retry on network errors
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransientServiceError{Err: err}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch resp.StatusCode {
		case 429:
			// Expected during high-volume cycles; the retry loop absorbs it.
			c.logger.Debug("rate limited, backing off 30s", "path", path, "attempt", attempt)
			c.rateLimiter.Throttle(30 * time.Second)
			lastErr = &RateLimitError{RetryAfter: 30 * time.Second}
			continue

		case 403:
			// The provider reports quota exhaustion as 403 with a rate-limit
			// reason; anything else is a real permission failure.
			if isQuotaError(respBody) {
				c.logger.Debug("quota exceeded, backing off 60s", "path", path, "attempt", attempt)
				c.rateLimiter.Throttle(60 * time.Second)
				lastErr = &RateLimitError{RetryAfter: 60 * time.Second}
				continue
			}
			return nil, &AuthError{StatusCode: 403, Detail: firstBytes(respBody, 200)}

		case 401:
			// The oauth2 transport auto-refreshes; if we still see 401 the
			// credential is invalid or revoked.
			return nil, &AuthError{StatusCode: 401, Detail: "token invalid or expired"}

		case 404:
			return nil, &NotFoundError{Path: path}

		case 500, 502, 503, 504:
			lastErr = &TransientServiceError{StatusCode: resp.StatusCode}
			continue

		default:
			return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, firstBytes(respBody, 200))
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns exponential backoff with full jitter.
func calculateBackoff(attempt int) time.Duration {
	// Exponential: 1, 2, 4, 8, ... capped at maxBackoff seconds.
	base := float64(uint(1) << uint(attempt))
	if base > maxBackoff {
		base = maxBackoff
	}

	jittered := rand.Float64() * base
	return time.Duration(jittered * float64(time.Second))
}

// isQuotaError checks if a 403 response body carries a quota/rate reason.
func isQuotaError(body []byte) bool {
	return bytes.Contains(body, []byte("rateLimitExceeded")) ||
		bytes.Contains(body, []byte("RATE_LIMIT_EXCEEDED")) ||
		bytes.Contains(body, []byte("Quota exceeded")) ||
		bytes.Contains(body, []byte("userRateLimitExceeded"))
}

// firstBytes returns the first n bytes of b as a string.
func firstBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// Wire types (unexported, used only for JSON unmarshaling).

type profileResponse struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
}

type messageRefJSON struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type listMessagesResponse struct {
	Messages           []messageRefJSON `json:"messages"`
	NextPageToken      string           `json:"nextPageToken"`
	ResultSizeEstimate int64            `json:"resultSizeEstimate"`
}

type headerJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partJSON struct {
	MIMEType string       `json:"mimeType"`
	Filename string       `json:"filename"`
	Headers  []headerJSON `json:"headers"`
	Parts    []partJSON   `json:"parts"`
}

type messageResponse struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	Snippet      string   `json:"snippet"`
	InternalDate string   `json:"internalDate"`
	SizeEstimate int64    `json:"sizeEstimate"`
	Payload      partJSON `json:"payload"`
}

// GetProfile returns the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	path := fmt.Sprintf("/users/%s/profile", c.userID)
	data, err := c.request(ctx, OpProfile, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp profileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Op: "parse profile", Err: err}
	}

	return &Profile{
		EmailAddress:  resp.EmailAddress,
		MessagesTotal: resp.MessagesTotal,
		ThreadsTotal:  resp.ThreadsTotal,
	}, nil
}

// ListMessages returns up to maxResults message IDs matching the query.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int, pageToken string) (*MessageList, error) {
	params := url.Values{}
	if maxResults <= 0 {
		maxResults = 100
	}
	params.Set("maxResults", strconv.Itoa(maxResults))
	if query != "" {
		params.Set("q", query)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	path := fmt.Sprintf("/users/%s/messages?%s", c.userID, params.Encode())
	data, err := c.request(ctx, OpMessagesList, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp listMessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Op: "parse message list", Err: err}
	}

	messages := make([]MessageRef, len(resp.Messages))
	for i, m := range resp.Messages {
		messages[i] = MessageRef(m)
	}

	return &MessageList{
		Messages:           messages,
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}, nil
}

// GetMessage fetches a single message in full format.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	path := fmt.Sprintf("/users/%s/messages/%s?format=full", c.userID, messageID)
	data, err := c.request(ctx, OpMessagesGet, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Op: "parse message", Err: err}
	}
	if resp.ID == "" {
		return nil, &ProtocolError{Op: "parse message", Err: fmt.Errorf("response missing message id")}
	}

	internalDate, _ := strconv.ParseInt(resp.InternalDate, 10, 64)

	return &Message{
		ID:           resp.ID,
		ThreadID:     resp.ThreadID,
		LabelIDs:     resp.LabelIDs,
		Snippet:      resp.Snippet,
		InternalDate: internalDate,
		SizeEstimate: resp.SizeEstimate,
		Headers:      mapHeaders(resp.Payload.Headers),
		Payload:      mapPart(resp.Payload),
	}, nil
}

// ModifyMessage adds and removes labels on a message.
func (c *Client) ModifyMessage(ctx context.Context, messageID string, addLabels, removeLabels []string) error {
	body := struct {
		AddLabelIDs    []string `json:"addLabelIds,omitempty"`
		RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
	}{AddLabelIDs: addLabels, RemoveLabelIDs: removeLabels}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	path := fmt.Sprintf("/users/%s/messages/%s/modify", c.userID, messageID)
	_, err = c.request(ctx, OpMessagesModify, "POST", path, bodyBytes)
	return err
}

func mapHeaders(headers []headerJSON) []Header {
	out := make([]Header, len(headers))
	for i, h := range headers {
		out[i] = Header(h)
	}
	return out
}

func mapPart(p partJSON) Part {
	out := Part{
		MIMEType: p.MIMEType,
		Filename: p.Filename,
	}
	for _, child := range p.Parts {
		out.Parts = append(out.Parts, mapPart(child))
	}
	return out
}

// Ensure Client implements API interface.
var _ API = (*Client)(nil)
