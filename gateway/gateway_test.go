package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/floodgate"
	"github.com/prilive-com/floodgate/client"
	"github.com/prilive-com/floodgate/gateway"
	"github.com/prilive-com/floodgate/internal/clock"
	"github.com/prilive-com/floodgate/internal/testutil"
)

// stubMessenger is a programmable upstream. Unset hooks return canned
// successes.
type stubMessenger struct {
	sendCalls atomic.Int32

	sendFunc    func(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error)
	editFunc    func(ctx context.Context, req floodgate.EditRequest) (*floodgate.Message, error)
	getMeFunc   func(ctx context.Context) (*floodgate.User, error)
	getMsgsFunc func(ctx context.Context, chatID string, page, pageSize int) ([]floodgate.Message, error)
}

func (m *stubMessenger) SendMessage(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
	m.sendCalls.Add(1)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, req)
	}
	return &floodgate.Message{ID: 1, ChatID: req.ChatID, Text: req.Message}, nil
}

func (m *stubMessenger) EditMessage(ctx context.Context, req floodgate.EditRequest) (*floodgate.Message, error) {
	if m.editFunc != nil {
		return m.editFunc(ctx, req)
	}
	return &floodgate.Message{ID: req.MessageID, ChatID: req.ChatID, Text: req.NewText}, nil
}

func (m *stubMessenger) DeleteMessage(ctx context.Context, req floodgate.DeleteRequest) error {
	return nil
}

func (m *stubMessenger) ForwardMessage(ctx context.Context, req floodgate.ForwardRequest) (*floodgate.Message, error) {
	return &floodgate.Message{ID: req.MessageID, ChatID: req.ToChatID}, nil
}

func (m *stubMessenger) GetChats(ctx context.Context, page, pageSize int) ([]floodgate.Chat, error) {
	return []floodgate.Chat{{ID: "1", Title: "First"}, {ID: "2", Title: "Second"}}, nil
}

func (m *stubMessenger) GetMessages(ctx context.Context, chatID string, page, pageSize int) ([]floodgate.Message, error) {
	if m.getMsgsFunc != nil {
		return m.getMsgsFunc(ctx, chatID, page, pageSize)
	}
	return []floodgate.Message{{ID: 1, ChatID: chatID, Text: "hello"}}, nil
}

func (m *stubMessenger) GetMe(ctx context.Context) (*floodgate.User, error) {
	if m.getMeFunc != nil {
		return m.getMeFunc(ctx)
	}
	return &floodgate.User{ID: "42", Username: "gatebot"}, nil
}

func newTestServer(t *testing.T, cfg gateway.Config, upstream floodgate.Messenger, sleeper *testutil.FakeSleeper, opts ...gateway.Option) http.Handler {
	t.Helper()

	clk := testutil.NewFakeClock()
	if sleeper == nil {
		sleeper = testutil.NewFakeSleeper(clk)
	}
	base := []gateway.Option{
		gateway.WithShieldOptions(
			floodgate.WithClock(clk),
			floodgate.WithSleeper(sleeper),
			floodgate.WithJitter(clock.NoJitter),
		),
	}
	s := gateway.NewServer(cfg, upstream, append(base, opts...)...)
	return s.Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) floodgate.Envelope {
	t.Helper()
	var env floodgate.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, gateway.DefaultConfig(), &stubMessenger{}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}

func TestSendMessage(t *testing.T) {
	handler := newTestServer(t, gateway.DefaultConfig(), &stubMessenger{}, nil)

	rec := doJSON(t, handler, http.MethodPost, "/messages/send",
		floodgate.SendRequest{ChatID: "100", Message: "hello"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	var msg floodgate.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "100", msg.ChatID)
	assert.Equal(t, "hello", msg.Text)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSendMessageValidation(t *testing.T) {
	handler := newTestServer(t, gateway.DefaultConfig(), &stubMessenger{}, nil)

	rec := doJSON(t, handler, http.MethodPost, "/messages/send",
		floodgate.SendRequest{Message: "no chat"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "BAD_REQUEST", env.ErrorCode)
}

func TestRequestIDPropagates(t *testing.T) {
	handler := newTestServer(t, gateway.DefaultConfig(), &stubMessenger{}, nil)

	header := http.Header{}
	header.Set("X-Request-ID", "caller-supplied-id")
	rec := doJSON(t, handler, http.MethodGet, "/health", nil, header)
	assert.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.APIKey = "secret"
	handler := newTestServer(t, cfg, &stubMessenger{}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	header := http.Header{}
	header.Set("X-API-Key", "secret")
	rec = doJSON(t, handler, http.MethodGet, "/me", nil, header)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open
	rec = doJSON(t, handler, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInboundRateLimit(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	handler := newTestServer(t, cfg, &stubMessenger{}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/me", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "RATE_LIMITED", env.ErrorCode)
}

func TestUpstreamRateLimitRetriedThenSucceeds(t *testing.T) {
	clk := testutil.NewFakeClock()
	sleeper := testutil.NewFakeSleeper(clk)

	upstream := &stubMessenger{}
	upstream.sendFunc = func(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
		if upstream.sendCalls.Load() == 1 {
			return nil, client.NewRateLimitAPIError("POST /messages/send", 2*time.Second, "Too Many Requests")
		}
		return &floodgate.Message{ID: 1, ChatID: req.ChatID}, nil
	}
	handler := newTestServer(t, gateway.DefaultConfig(), upstream, sleeper)

	rec := doJSON(t, handler, http.MethodPost, "/messages/send",
		floodgate.SendRequest{ChatID: "100", Message: "retry"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), upstream.sendCalls.Load())
	assert.Equal(t, 2*time.Second, sleeper.CallAt(0))
}

func TestUpstreamFloodWaitSurfacesAs429(t *testing.T) {
	upstream := &stubMessenger{
		sendFunc: func(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
			return nil, client.NewFloodWaitAPIError("POST /messages/send", 30*time.Second, "FLOOD_WAIT_30", "flooded")
		},
	}
	handler := newTestServer(t, gateway.DefaultConfig(), upstream, nil,
		gateway.WithShieldOptions(floodgate.WithMaxRetries(0)))

	rec := doJSON(t, handler, http.MethodPost, "/messages/send",
		floodgate.SendRequest{ChatID: "100", Message: "flood"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "FLOOD_WAIT_30", env.ErrorCode)
	require.NotNil(t, env.Parameters)
	assert.Equal(t, float64(30), env.Parameters.Seconds)
	assert.Equal(t, float64(30), env.Parameters.RetryAfter)
}

func TestUpstreamTransientExhaustsAs502(t *testing.T) {
	upstream := &stubMessenger{
		getMeFunc: func(ctx context.Context) (*floodgate.User, error) {
			return nil, client.NewAPIError("GET /me", http.StatusBadGateway, "", "Bad Gateway")
		},
	}
	handler := newTestServer(t, gateway.DefaultConfig(), upstream, nil,
		gateway.WithShieldOptions(floodgate.WithMaxRetries(1)))

	rec := doJSON(t, handler, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", env.ErrorCode)
}

func TestUpstreamProtocolErrorPassesThrough(t *testing.T) {
	upstream := &stubMessenger{
		sendFunc: func(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
			return nil, client.NewAPIError("POST /messages/send", http.StatusOK, "CHAT_NOT_FOUND", "chat not found")
		},
	}
	handler := newTestServer(t, gateway.DefaultConfig(), upstream, nil)

	rec := doJSON(t, handler, http.MethodPost, "/messages/send",
		floodgate.SendRequest{ChatID: "999", Message: "void"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "CHAT_NOT_FOUND", env.ErrorCode)

	// Fatal errors never retry
	assert.Equal(t, int32(1), upstream.sendCalls.Load())
}

func TestGetMessagesPagination(t *testing.T) {
	var gotPage, gotPageSize int
	upstream := &stubMessenger{
		getMsgsFunc: func(ctx context.Context, chatID string, page, pageSize int) ([]floodgate.Message, error) {
			gotPage, gotPageSize = page, pageSize
			return nil, nil
		},
	}
	handler := newTestServer(t, gateway.DefaultConfig(), upstream, nil)

	rec := doJSON(t, handler, http.MethodGet, "/chats/100/messages?page=3&page_size=500", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, gotPage)
	assert.Equal(t, 200, gotPageSize, "page_size is capped")
}
