package floodgate

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the thin pass-through view of a message. Rich message
// semantics (attachments, polls, reactions) are deliberately out of scope.
type Message struct {
	ID     int       `json:"id"`
	ChatID string    `json:"chat_id"`
	Sender string    `json:"sender,omitempty"`
	Text   string    `json:"text,omitempty"`
	Date   time.Time `json:"date,omitempty"`
}

// Chat is the thin pass-through view of a chat.
type Chat struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Type        string `json:"type,omitempty"`
	Username    string `json:"username,omitempty"`
	UnreadCount int    `json:"unread_count,omitempty"`
}

// User is the thin pass-through view of the authenticated account.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// SendRequest sends a text message to a chat.
type SendRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
	ReplyTo int    `json:"reply_to,omitempty"`
}

// EditRequest replaces the text of an existing message.
type EditRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int    `json:"message_id"`
	NewText   string `json:"new_text"`
}

// DeleteRequest deletes a message.
type DeleteRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Revoke    bool   `json:"revoke,omitempty"`
}

// ForwardRequest forwards a message between chats.
type ForwardRequest struct {
	FromChatID string `json:"from_chat_id"`
	ToChatID   string `json:"to_chat_id"`
	MessageID  int    `json:"message_id"`
}

// Messenger is the remote-call collaborator: one messaging operation per
// method, performed against the remote API. Implementations return errors
// carrying enough structured or textual detail for package classify.
type Messenger interface {
	SendMessage(ctx context.Context, req SendRequest) (*Message, error)
	EditMessage(ctx context.Context, req EditRequest) (*Message, error)
	DeleteMessage(ctx context.Context, req DeleteRequest) error
	ForwardMessage(ctx context.Context, req ForwardRequest) (*Message, error)
	GetChats(ctx context.Context, page, pageSize int) ([]Chat, error)
	GetMessages(ctx context.Context, chatID string, page, pageSize int) ([]Message, error)
	GetMe(ctx context.Context) (*User, error)
}

// Envelope is the wire format the gateway serves and the client consumes.
type Envelope struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data,omitempty"`
	Error      string              `json:"error,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty"`
	Parameters *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters carries throttling hints on error envelopes. Both
// field names are populated for throttling errors so callers may read
// either; seconds is the flood-wait spelling, retry_after the HTTP one.
type ResponseParameters struct {
	RetryAfter float64 `json:"retry_after,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
}
