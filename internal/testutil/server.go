package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// TestChatID is the chat used by canned replies.
const TestChatID = "100123"

// Capture is one recorded upstream request.
type Capture struct {
	Method    string
	Path      string
	Query     url.Values
	Headers   http.Header
	Body      []byte
	Timestamp time.Time
}

// MockUpstream is a mock envelope-protocol server standing in for the
// remote messaging API. The server is closed when the test completes.
type MockUpstream struct {
	*httptest.Server
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	captures []Capture
}

// NewMockUpstream creates a mock upstream server.
func NewMockUpstream(t *testing.T) *MockUpstream {
	t.Helper()

	m := &MockUpstream{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	// Read body once for capture
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	m.captures = append(m.captures, Capture{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   r.Header.Clone(),
		Body:      body,
		Timestamp: time.Now(),
	})
	handler, exists := m.handlers[r.Method+":"+r.URL.Path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	ReplyOK(w, map[string]any{})
}

// On registers a handler for a method and path.
func (m *MockUpstream) On(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+":"+path] = handler
}

// Captures returns all captured requests.
func (m *MockUpstream) Captures() []Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Capture{}, m.captures...)
}

// CaptureCount returns the total number of captured requests.
func (m *MockUpstream) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

// LastCapture returns the most recent captured request, or nil.
func (m *MockUpstream) LastCapture() *Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.captures) == 0 {
		return nil
	}
	return &m.captures[len(m.captures)-1]
}

// TimeBetweenCaptures returns the duration between two captures.
// Useful for rate-limit testing.
func (m *MockUpstream) TimeBetweenCaptures(i, j int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || j < 0 || i >= len(m.captures) || j >= len(m.captures) {
		return 0
	}
	return m.captures[j].Timestamp.Sub(m.captures[i].Timestamp)
}

// BaseURL returns the server's base URL.
func (m *MockUpstream) BaseURL() string {
	return m.Server.URL
}
