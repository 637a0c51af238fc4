package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/floodgate"
	"github.com/prilive-com/floodgate/classify"
	"github.com/prilive-com/floodgate/internal/clock"
	"github.com/prilive-com/floodgate/internal/testutil"
)

type stubMessenger struct {
	sendErr error
}

func (m *stubMessenger) SendMessage(ctx context.Context, req floodgate.SendRequest) (*floodgate.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &floodgate.Message{ID: 1, ChatID: req.ChatID, Text: req.Message}, nil
}

func (m *stubMessenger) EditMessage(ctx context.Context, req floodgate.EditRequest) (*floodgate.Message, error) {
	return &floodgate.Message{ID: req.MessageID, ChatID: req.ChatID, Text: req.NewText}, nil
}

func (m *stubMessenger) DeleteMessage(ctx context.Context, req floodgate.DeleteRequest) error {
	return nil
}

func (m *stubMessenger) ForwardMessage(ctx context.Context, req floodgate.ForwardRequest) (*floodgate.Message, error) {
	return &floodgate.Message{ID: req.MessageID, ChatID: req.ToChatID}, nil
}

func (m *stubMessenger) GetChats(ctx context.Context, page, pageSize int) ([]floodgate.Chat, error) {
	return []floodgate.Chat{{ID: "1"}, {ID: "2"}}, nil
}

func (m *stubMessenger) GetMessages(ctx context.Context, chatID string, page, pageSize int) ([]floodgate.Message, error) {
	return []floodgate.Message{{ID: 1, ChatID: chatID}}, nil
}

func (m *stubMessenger) GetMe(ctx context.Context) (*floodgate.User, error) {
	return &floodgate.User{ID: "42"}, nil
}

// wireResponse decodes a response line with the result left raw.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// serve runs a server over the given request lines and returns all
// responses keyed by request ID.
func serve(t *testing.T, upstream floodgate.Messenger, lines []string, opts ...Option) map[string]wireResponse {
	t.Helper()

	clk := testutil.NewFakeClock()
	sleeper := testutil.NewFakeSleeper(clk)
	base := []Option{
		WithShieldOptions(
			floodgate.WithClock(clk),
			floodgate.WithSleeper(sleeper),
			floodgate.WithJitter(clock.NoJitter),
		),
	}

	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	s := NewServer(upstream, in, &out, append(base, opts...)...)

	require.NoError(t, s.Run(context.Background()))

	responses := make(map[string]wireResponse)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp wireResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses[string(resp.ID)] = resp
	}
	return responses
}

func callLine(id int, name string, args map[string]any) string {
	line, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  toolCallParams{Name: name, Arguments: args},
	})
	return string(line)
}

func resultOf(t *testing.T, resp wireResponse) toolCallResult {
	t.Helper()
	var result toolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return result
}

func TestInitialize(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
	})

	resp, ok := responses["1"]
	require.True(t, ok)
	require.Nil(t, resp.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocolVersion, result.ProtocolVersion)
	assert.Equal(t, serverName, result.ServerInfo.Name)
}

func TestToolsList(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	})

	resp := responses["1"]
	require.Nil(t, resp.Error)

	var result toolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 6)

	names := make([]string, 0, len(result.Tools))
	for _, tl := range result.Tools {
		names = append(names, tl.Name)
	}
	assert.Contains(t, names, "send_message")
	assert.Contains(t, names, "edit_message")
	assert.Contains(t, names, "get_messages")
}

func TestCallSendMessage(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		callLine(1, "send_message", map[string]any{
			"chat_id": "100",
			"message": "hello",
		}),
	})

	result := resultOf(t, responses["1"])
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, `"chat_id":"100"`)
}

func TestCallValidatesArguments(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		callLine(1, "send_message", map[string]any{"message": "no chat"}),
	})

	result := resultOf(t, responses["1"])
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "chat_id")
}

func TestCallUnknownTool(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		callLine(1, "does_not_exist", nil),
	})

	result := resultOf(t, responses["1"])
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "unknown tool")
}

func TestUnknownMethod(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
	})

	resp := responses["1"]
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestParseErrorRespondsWithNullID(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		`this is not json`,
	})

	resp, ok := responses["null"]
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestNotificationGetsNoResponse(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	})

	assert.Len(t, responses, 1)
	_, ok := responses["1"]
	assert.True(t, ok)
}

func TestFloodWaitNamedInToolResult(t *testing.T) {
	upstream := &stubMessenger{
		sendErr: &classify.FloodWaitError{Wait: 30 * time.Second},
	}
	responses := serve(t, upstream, []string{
		callLine(1, "send_message", map[string]any{
			"chat_id": "100",
			"message": "flooded",
		}),
	}, WithShieldOptions(floodgate.WithMaxRetries(0)))

	result := resultOf(t, responses["1"])
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "wait of 30 seconds")
}

func TestGetChats(t *testing.T) {
	responses := serve(t, &stubMessenger{}, []string{
		callLine(1, "get_chats", map[string]any{"page": float64(1)}),
	})

	result := resultOf(t, responses["1"])
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, `"id":"1"`)
}
