package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/prilive-com/floodgate"
	"github.com/prilive-com/floodgate/classify"
)

// tool is a callable tool definition.
type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []tool `json:"tools"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolCatalog() []tool {
	return []tool{
		{
			Name:        "send_message",
			Description: "Send a text message to a chat",
			InputSchema: schema(map[string]any{
				"chat_id":  map[string]any{"type": "string", "description": "Target chat ID"},
				"message":  map[string]any{"type": "string", "description": "Message text"},
				"reply_to": map[string]any{"type": "integer", "description": "Message ID to reply to"},
			}, "chat_id", "message"),
		},
		{
			Name:        "edit_message",
			Description: "Replace the text of an existing message",
			InputSchema: schema(map[string]any{
				"chat_id":    map[string]any{"type": "string", "description": "Chat ID"},
				"message_id": map[string]any{"type": "integer", "description": "Message ID to edit"},
				"new_text":   map[string]any{"type": "string", "description": "Replacement text"},
			}, "chat_id", "message_id", "new_text"),
		},
		{
			Name:        "delete_message",
			Description: "Delete a message",
			InputSchema: schema(map[string]any{
				"chat_id":    map[string]any{"type": "string", "description": "Chat ID"},
				"message_id": map[string]any{"type": "integer", "description": "Message ID to delete"},
				"revoke":     map[string]any{"type": "boolean", "description": "Delete for all participants"},
			}, "chat_id", "message_id"),
		},
		{
			Name:        "forward_message",
			Description: "Forward a message between chats",
			InputSchema: schema(map[string]any{
				"from_chat_id": map[string]any{"type": "string", "description": "Source chat ID"},
				"to_chat_id":   map[string]any{"type": "string", "description": "Destination chat ID"},
				"message_id":   map[string]any{"type": "integer", "description": "Message ID to forward"},
			}, "from_chat_id", "to_chat_id", "message_id"),
		},
		{
			Name:        "get_chats",
			Description: "List chats, paginated",
			InputSchema: schema(map[string]any{
				"page":      map[string]any{"type": "integer", "description": "Page number, starting at 1"},
				"page_size": map[string]any{"type": "integer", "description": "Chats per page"},
			}),
		},
		{
			Name:        "get_messages",
			Description: "List messages in a chat, paginated",
			InputSchema: schema(map[string]any{
				"chat_id":   map[string]any{"type": "string", "description": "Chat ID"},
				"page":      map[string]any{"type": "integer", "description": "Page number, starting at 1"},
				"page_size": map[string]any{"type": "integer", "description": "Messages per page"},
			}, "chat_id"),
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeErrorResponse(req.ID, codeInvalidParams, "invalid params")
		return
	}
	s.writeResult(req.ID, s.callTool(ctx, params.Name, params.Arguments))
}

func (s *Server) callTool(ctx context.Context, name string, args map[string]any) toolCallResult {
	switch name {
	case "send_message":
		var req floodgate.SendRequest
		if err := decodeArgs(args, &req); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
		if req.ChatID == "" || req.Message == "" {
			return errorResult("chat_id and message are required")
		}
		msg, err := floodgate.Do(s.shield, ctx, floodgate.SendKeys(req.ChatID),
			func(ctx context.Context) (*floodgate.Message, error) {
				return s.upstream.SendMessage(ctx, req)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(msg)

	case "edit_message":
		var req floodgate.EditRequest
		if err := decodeArgs(args, &req); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
		if req.ChatID == "" || req.MessageID == 0 || req.NewText == "" {
			return errorResult("chat_id, message_id and new_text are required")
		}
		msg, err := floodgate.Do(s.shield, ctx, floodgate.EditKeys(),
			func(ctx context.Context) (*floodgate.Message, error) {
				return s.upstream.EditMessage(ctx, req)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(msg)

	case "delete_message":
		var req floodgate.DeleteRequest
		if err := decodeArgs(args, &req); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
		if req.ChatID == "" || req.MessageID == 0 {
			return errorResult("chat_id and message_id are required")
		}
		_, err := floodgate.Do(s.shield, ctx, floodgate.SendKeys(req.ChatID),
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.upstream.DeleteMessage(ctx, req)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(map[string]bool{"deleted": true})

	case "forward_message":
		var req floodgate.ForwardRequest
		if err := decodeArgs(args, &req); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
		if req.FromChatID == "" || req.ToChatID == "" || req.MessageID == 0 {
			return errorResult("from_chat_id, to_chat_id and message_id are required")
		}
		msg, err := floodgate.Do(s.shield, ctx, floodgate.SendKeys(req.ToChatID),
			func(ctx context.Context) (*floodgate.Message, error) {
				return s.upstream.ForwardMessage(ctx, req)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(msg)

	case "get_chats":
		page, pageSize := paginationArgs(args)
		chats, err := floodgate.Do(s.shield, ctx, floodgate.ReadKeys(),
			func(ctx context.Context) ([]floodgate.Chat, error) {
				return s.upstream.GetChats(ctx, page, pageSize)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(chats)

	case "get_messages":
		chatID, _ := args["chat_id"].(string)
		if chatID == "" {
			return errorResult("chat_id is required")
		}
		page, pageSize := paginationArgs(args)
		msgs, err := floodgate.Do(s.shield, ctx, floodgate.ReadKeys(),
			func(ctx context.Context) ([]floodgate.Message, error) {
				return s.upstream.GetMessages(ctx, chatID, page, pageSize)
			})
		if err != nil {
			return throttleAwareError(err)
		}
		return jsonResult(msgs)

	default:
		return errorResult("unknown tool: " + name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func paginationArgs(args map[string]any) (page, pageSize int) {
	page = 1
	pageSize = 50
	if p, ok := args["page"].(float64); ok && p > 0 {
		page = int(p)
	}
	if ps, ok := args["page_size"].(float64); ok && ps > 0 {
		pageSize = int(ps)
	}
	return page, pageSize
}

func jsonResult(payload any) toolCallResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return toolCallResult{Content: []content{{Type: "text", Text: string(data)}}}
}

func errorResult(text string) toolCallResult {
	return toolCallResult{
		Content: []content{{Type: "text", Text: text}},
		IsError: true,
	}
}

// throttleAwareError renders a shielded failure so the calling agent learns
// which limit fired and how long to hold off.
func throttleAwareError(err error) toolCallResult {
	var floodErr *classify.FloodWaitError
	if errors.As(err, &floodErr) {
		seconds := int(math.Ceil(floodErr.Wait.Seconds()))
		return errorResult(fmt.Sprintf("flood control: a wait of %d seconds is required before retrying", seconds))
	}

	var rlErr *classify.RateLimitError
	if errors.As(err, &rlErr) {
		return errorResult(fmt.Sprintf("rate limited: retry after %s", rlErr.RetryAfter))
	}

	if errors.Is(err, classify.ErrMaxRetries) {
		return errorResult("operation failed after exhausting retries: " + err.Error())
	}

	return errorResult(err.Error())
}
