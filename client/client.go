package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/prilive-com/floodgate"
	"github.com/prilive-com/floodgate/internal/clock"
	"github.com/prilive-com/floodgate/internal/scrub"
	"github.com/prilive-com/floodgate/throttle"
)

const (
	maxResponseSize = 10 << 20 // 10MB
)

// CircuitBreakerSettings configures the circuit breaker behavior.
type CircuitBreakerSettings struct {
	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	// If 0, internal counts never reset in closed state.
	Interval time.Duration

	// Timeout is the duration of the open state before transitioning to half-open.
	Timeout time.Duration

	// ReadyToTrip determines if breaker should trip based on failure counts.
	// If nil, uses default (50% failure rate after 3 requests).
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultCircuitBreakerSettings returns production-ready defaults.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.5
		},
	}
}

// Client is the scripting client for the envelope-protocol messaging API.
type Client struct {
	config          Config
	httpClient      *http.Client
	logger          *slog.Logger
	shield          *floodgate.Shield
	shieldOpts      []floodgate.Option
	breaker         *gobreaker.CircuitBreaker[*floodgate.Envelope]
	breakerSettings CircuitBreakerSettings
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.config.BaseURL = url }
}

// WithAPIKey sets the API key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.config.APIKey = key }
}

// WithMaxRetries sets the retry budget per operation.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.config.MaxRetries = max }
}

// WithMinRequestInterval sets the global request spacing.
func WithMinRequestInterval(d time.Duration) Option {
	return func(c *Client) { c.config.MinRequestInterval = d }
}

// WithPerChatInterval sets the per-chat send spacing.
func WithPerChatInterval(d time.Duration) Option {
	return func(c *Client) { c.config.PerChatInterval = d }
}

// WithSleeper sets the suspension mechanism for throttle clearance and
// backoff waits (useful for testing).
func WithSleeper(s clock.Sleeper) Option {
	return func(c *Client) { c.shieldOpts = append(c.shieldOpts, floodgate.WithSleeper(s)) }
}

// WithClock sets the time source (useful for testing).
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.shieldOpts = append(c.shieldOpts, floodgate.WithClock(clk)) }
}

// WithJitter sets the jitter source (useful for testing).
func WithJitter(j clock.JitterFunc) Option {
	return func(c *Client) { c.shieldOpts = append(c.shieldOpts, floodgate.WithJitter(j)) }
}

// WithCircuitBreakerSettings configures the circuit breaker.
func WithCircuitBreakerSettings(settings CircuitBreakerSettings) Option {
	return func(c *Client) { c.breakerSettings = settings }
}

func createHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: cfg.KeepAlive,
			}).DialContext,
			MaxIdleConns:          cfg.MaxIdleConns,
			IdleConnTimeout:       cfg.IdleTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// New creates a Client with default configuration and the given options.
func New(opts ...Option) (*Client, error) {
	return NewFromConfig(DefaultConfig(), opts...)
}

// NewFromConfig creates a Client from a Config.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{config: cfg}

	for _, opt := range opts {
		opt(c)
	}

	if !strings.HasPrefix(c.config.BaseURL, "http://") && !strings.HasPrefix(c.config.BaseURL, "https://") {
		return nil, ErrInvalidBaseURL
	}
	c.config.BaseURL = strings.TrimRight(c.config.BaseURL, "/")

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.httpClient == nil {
		c.httpClient = createHTTPClient(c.config)
	}

	if c.breakerSettings.ReadyToTrip == nil {
		c.breakerSettings = DefaultCircuitBreakerSettings()
		if c.config.BreakerMaxRequests > 0 {
			c.breakerSettings.MaxRequests = c.config.BreakerMaxRequests
		}
		if c.config.BreakerInterval > 0 {
			c.breakerSettings.Interval = c.config.BreakerInterval
		}
		if c.config.BreakerTimeout > 0 {
			c.breakerSettings.Timeout = c.config.BreakerTimeout
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*floodgate.Envelope](gobreaker.Settings{
		Name:         "floodgate-client",
		MaxRequests:  c.breakerSettings.MaxRequests,
		Interval:     c.breakerSettings.Interval,
		Timeout:      c.breakerSettings.Timeout,
		ReadyToTrip:  c.breakerSettings.ReadyToTrip,
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	shieldOpts := append([]floodgate.Option{
		floodgate.WithMinRequestInterval(c.config.MinRequestInterval),
		floodgate.WithPerChatInterval(c.config.PerChatInterval),
		floodgate.WithEditLimits(c.config.EditsPerSecond, c.config.EditsPerHour),
		floodgate.WithMaxRetries(c.config.MaxRetries),
		floodgate.WithLogger(c.logger),
	}, c.shieldOpts...)
	c.shield = floodgate.New(shieldOpts...)

	return c, nil
}

// Close releases resources used by the client.
func (c *Client) Close() error {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Shield returns the client's privately owned shield, mainly for monitoring.
func (c *Client) Shield() *floodgate.Shield { return c.shield }

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
	if req.ChatID == "" {
		return nil, NewValidationError("chat_id", "must not be empty")
	}
	return call[*floodgate.Message](c, ctx, floodgate.SendKeys(req.ChatID),
		http.MethodPost, "/messages/send", nil, req)
}

// EditMessage replaces the text of an existing message.
func (c *Client) EditMessage(ctx context.Context, req floodgate.EditRequest) (*floodgate.Message, error) {
	if req.ChatID == "" {
		return nil, NewValidationError("chat_id", "must not be empty")
	}
	return call[*floodgate.Message](c, ctx, floodgate.EditKeys(),
		http.MethodPut, "/messages/edit", nil, req)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, req floodgate.DeleteRequest) error {
	if req.ChatID == "" {
		return NewValidationError("chat_id", "must not be empty")
	}
	_, err := call[json.RawMessage](c, ctx, floodgate.SendKeys(req.ChatID),
		http.MethodDelete, "/messages/delete", nil, req)
	return err
}

// ForwardMessage forwards a message between chats.
func (c *Client) ForwardMessage(ctx context.Context, req floodgate.ForwardRequest) (*floodgate.Message, error) {
	if req.ToChatID == "" {
		return nil, NewValidationError("to_chat_id", "must not be empty")
	}
	return call[*floodgate.Message](c, ctx, floodgate.SendKeys(req.ToChatID),
		http.MethodPost, "/messages/forward", nil, req)
}

// GetChats returns a paginated chat list.
func (c *Client) GetChats(ctx context.Context, page, pageSize int) ([]floodgate.Chat, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	return call[[]floodgate.Chat](c, ctx, floodgate.ReadKeys(),
		http.MethodGet, "/chats", query, nil)
}

// GetMessages returns a paginated message list for a chat.
func (c *Client) GetMessages(ctx context.Context, chatID string, page, pageSize int) ([]floodgate.Message, error) {
	if chatID == "" {
		return nil, NewValidationError("chat_id", "must not be empty")
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	return call[[]floodgate.Message](c, ctx, floodgate.ReadKeys(),
		http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", query, nil)
}

// GetMe returns the authenticated account.
func (c *Client) GetMe(ctx context.Context) (*floodgate.User, error) {
	return call[*floodgate.User](c, ctx, floodgate.ReadKeys(),
		http.MethodGet, "/me", nil, nil)
}

// call runs one operation through the shield: throttle clearance, the
// breaker-guarded HTTP exchange, then classification-driven retries.
func call[T any](c *Client, ctx context.Context, keys []throttle.Key, method, path string, query url.Values, payload any) (T, error) {
	return floodgate.Do(c.shield, ctx, keys, func(ctx context.Context) (T, error) {
		var zero T
		env, err := c.breaker.Execute(func() (*floodgate.Envelope, error) {
			return c.doRequest(ctx, method, path, query, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return zero, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
			}
			return zero, err
		}
		var out T
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &out); err != nil {
				return zero, fmt.Errorf("floodgate: %s %s: failed to parse response: %w", method, path, err)
			}
		}
		return out, nil
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) (*floodgate.Envelope, error) {
	endpoint := method + " " + path

	reqURL := c.config.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("floodgate: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("floodgate: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("floodgate: request failed: %w", scrub.SecretFromError(err, c.config.APIKey))
	}
	defer resp.Body.Close()

	// Read maxResponseSize+1 to detect overflow without a false positive.
	limitedReader := io.LimitReader(resp.Body, maxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("floodgate: failed to read response: %w", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitAPIError(endpoint, parseRetryAfter(body, resp), "Too Many Requests")
	}
	if resp.StatusCode >= 500 {
		return nil, NewAPIError(endpoint, resp.StatusCode, "", http.StatusText(resp.StatusCode))
	}

	var env floodgate.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("floodgate: failed to parse response: %w", err)
	}

	if !env.Success {
		if isFloodSignal(&env) {
			return nil, NewFloodWaitAPIError(endpoint, floodWaitFromEnvelope(&env), env.ErrorCode, env.Error)
		}
		return nil, NewAPIError(endpoint, resp.StatusCode, env.ErrorCode, env.Error)
	}

	return &env, nil
}

func isFloodSignal(env *floodgate.Envelope) bool {
	combined := strings.ToUpper(env.ErrorCode + " " + env.Error)
	return strings.Contains(combined, "FLOOD_WAIT")
}

// floodWaitFromEnvelope reads the structured wait fields. A zero result is
// fine: the classifier falls back to the FLOOD_WAIT_<n> text pattern.
func floodWaitFromEnvelope(env *floodgate.Envelope) time.Duration {
	if env.Parameters == nil {
		return 0
	}
	if env.Parameters.Seconds > 0 {
		return time.Duration(env.Parameters.Seconds * float64(time.Second))
	}
	if env.Parameters.RetryAfter > 0 {
		return time.Duration(env.Parameters.RetryAfter * float64(time.Second))
	}
	return 0
}

// parseRetryAfter extracts retry_after from the JSON body (primary) or the
// Retry-After header (fallback). Zero means no hint; the classifier applies
// the 1s default.
func parseRetryAfter(body []byte, resp *http.Response) time.Duration {
	var env floodgate.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		return time.Duration(env.Parameters.RetryAfter * float64(time.Second))
	}
	if retryHeader := resp.Header.Get("Retry-After"); retryHeader != "" {
		if seconds, err := strconv.Atoi(retryHeader); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// isBreakerSuccess determines if an error should count as a breaker failure.
// Only server errors (5xx) and network errors trip the breaker. 429 is rate
// pressure, handled via retry_after, not service degradation.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Verify the client satisfies the shared operation surface.
var _ floodgate.Messenger = (*Client)(nil)
