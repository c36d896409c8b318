package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/docgen/pkg/types"
)

// Client defaults
const (
	DefaultRetries      = 30
	DefaultTimeout      = 30 * time.Second
	DefaultMaxTokens    = 12000
	BackoffMultiplier   = 2.0
	maxErrorBodyBytes   = 4096
	maxIdleConnsPerHost = 32
)

// Config holds construction parameters for a Client
type Config struct {
	BaseURL   string
	Token     string
	Retry     RetryConfig
	Timeout   time.Duration // bounds connect, response headers and each body read per attempt
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int
	MaxTokens int // default max_tokens when Options.MaxTokens is zero
}

// DefaultConfig returns a Config with the reference retry and timeout policy
func DefaultConfig() Config {
	return Config{
		Retry:     DefaultRetryConfig(),
		Timeout:   DefaultTimeout,
		MaxTokens: DefaultMaxTokens,
	}
}

// Options are per-call completion parameters
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Extra       map[string]string
}

// Client issues streaming chat completion requests. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	maxTokens  int
	timeout    time.Duration
	retry      RetryConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client from cfg
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     logger.Named("completion"),
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// newHTTPClient builds a client without an overall timeout so long streams
// are not cut off. Dialing and response headers are bounded here; body reads
// are bounded per read by the stream.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	transport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	return &http.Client{Transport: transport}
}

// StreamCompletion opens a completion stream for messages. Transient failures
// are retried; on final failure a *TransportError is returned.
func (c *Client) StreamCompletion(ctx context.Context, messages []types.ChatMessage, opts Options) (*Stream, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	for i := range messages {
		if err := messages[i].Validate(); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := c.endpoint(opts)
	if err != nil {
		return nil, err
	}

	onRetry := func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("completion attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	opened, attempts, err := retryWithBackoff(ctx, c.retry, isRetryable, onRetry, func() (*Stream, error) {
		return c.open(ctx, endpoint, body)
	})
	if err != nil {
		return nil, toTransportError(err, attempts)
	}
	opened.attempts = attempts

	c.logger.Debug("completion stream opened",
		zap.String("model", opts.Model),
		zap.Int("attempts", attempts))
	return opened, nil
}

// SimpleCompletion sends prompt as a single system message and returns the
// trimmed concatenation of all streamed content.
func (c *Client) SimpleCompletion(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	msg, err := types.NewChatMessage(types.RoleSystem, prompt)
	if err != nil {
		return "", err
	}

	stream, err := c.StreamCompletion(ctx, []types.ChatMessage{msg}, Options{
		Model:       model,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = stream.Close()
	}()

	return Collect(stream)
}

// Close releases idle connections held by the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// open performs a single attempt
func (c *Client) open(ctx context.Context, endpoint string, body []byte) (*Stream, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", errRateLimitWait, err)
		}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("api call: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		cancel()
		return nil, &statusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	return newStream(resp.Body, cancel, c.timeout, c.logger), nil
}

// endpoint builds the request URL with all query parameters
func (c *Client) endpoint(opts Options) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("model", opts.Model)
	q.Set("stream", "true")
	q.Set("token", c.token)
	q.Set("nofeed", "false")
	q.Set("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		q.Set("max_tokens", strconv.Itoa(maxTokens))
	}

	for k, v := range opts.Extra {
		if k == "" || v == "" {
			continue
		}
		q.Set(k, v)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
