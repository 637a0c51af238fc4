package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// envelope mirrors the wire format without importing the root package,
// keeping testutil dependency-free within the module.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorCode  string      `json:"error_code,omitempty"`
	Parameters *parameters `json:"parameters,omitempty"`
}

type parameters struct {
	RetryAfter float64 `json:"retry_after,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
}

// ReplyOK writes a successful envelope response.
func ReplyOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// ReplyError writes an error envelope with HTTP status 200 (protocol-level
// failure, the transport itself succeeded).
func ReplyError(w http.ResponseWriter, errMsg, errCode string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Error:     errMsg,
		ErrorCode: errCode,
	})
}

// ReplyFloodWait writes a flood-control error envelope carrying the wait in
// both the error code text and the structured parameters.
func ReplyFloodWait(w http.ResponseWriter, seconds int) {
	w.Header().Set("Content-Type", "application/json")
	code := fmt.Sprintf("FLOOD_WAIT_%d", seconds)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:    false,
		Error:      "A wait of " + strconv.Itoa(seconds) + " seconds is required",
		ErrorCode:  code,
		Parameters: &parameters{Seconds: float64(seconds)},
	})
}

// ReplyFloodWaitTextOnly writes a flood-control error whose wait appears
// only in the error text, for testing the textual fallback.
func ReplyFloodWaitTextOnly(w http.ResponseWriter, seconds int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   fmt.Sprintf("FLOOD_WAIT_%d", seconds),
	})
}

// ReplyRateLimit writes a 429 response with retry_after in both the JSON
// body and the Retry-After header.
func ReplyRateLimit(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:    false,
		Error:      "Too Many Requests: retry after " + strconv.Itoa(retryAfter),
		Parameters: &parameters{RetryAfter: float64(retryAfter)},
	})
}

// ReplyRateLimitHeaderOnly writes a 429 with retry_after ONLY in the HTTP
// header, for testing the header fallback.
func ReplyRateLimitHeaderOnly(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
}

// ReplyServerError writes a bare 5xx response.
func ReplyServerError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// ReplyMessage writes a successful message envelope.
func ReplyMessage(w http.ResponseWriter, messageID int) {
	ReplyOK(w, map[string]any{
		"id":      messageID,
		"chat_id": TestChatID,
		"text":    "Test message",
	})
}

// ReplyChats writes a successful chat-list envelope with n chats.
func ReplyChats(w http.ResponseWriter, n int) {
	chats := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		chats = append(chats, map[string]any{
			"id":    strconv.Itoa(1000 + i),
			"title": fmt.Sprintf("Chat %d", i),
			"type":  "private",
		})
	}
	ReplyOK(w, chats)
}

// ReplyUser writes a successful account envelope.
func ReplyUser(w http.ResponseWriter) {
	ReplyOK(w, map[string]any{
		"id":         "42",
		"username":   "testuser",
		"first_name": "Test",
	})
}
