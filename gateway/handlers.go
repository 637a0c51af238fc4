package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prilive-com/floodgate"
	"github.com/prilive-com/floodgate/classify"
	"github.com/prilive-com/floodgate/client"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req floodgate.SendRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ChatID == "" {
		s.writeError(w, http.StatusBadRequest, "chat_id must not be empty", "BAD_REQUEST")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message must not be empty", "BAD_REQUEST")
		return
	}

	msg, err := floodgate.Do(s.shield, r.Context(), floodgate.SendKeys(req.ChatID),
		func(ctx context.Context) (*floodgate.Message, error) {
			return s.upstream.SendMessage(ctx, req)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, msg)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req floodgate.EditRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ChatID == "" || req.MessageID == 0 {
		s.writeError(w, http.StatusBadRequest, "chat_id and message_id are required", "BAD_REQUEST")
		return
	}

	msg, err := floodgate.Do(s.shield, r.Context(), floodgate.EditKeys(),
		func(ctx context.Context) (*floodgate.Message, error) {
			return s.upstream.EditMessage(ctx, req)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req floodgate.DeleteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ChatID == "" || req.MessageID == 0 {
		s.writeError(w, http.StatusBadRequest, "chat_id and message_id are required", "BAD_REQUEST")
		return
	}

	_, err := floodgate.Do(s.shield, r.Context(), floodgate.SendKeys(req.ChatID),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.upstream.DeleteMessage(ctx, req)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, map[string]bool{"deleted": true})
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req floodgate.ForwardRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.FromChatID == "" || req.ToChatID == "" || req.MessageID == 0 {
		s.writeError(w, http.StatusBadRequest, "from_chat_id, to_chat_id and message_id are required", "BAD_REQUEST")
		return
	}

	msg, err := floodgate.Do(s.shield, r.Context(), floodgate.SendKeys(req.ToChatID),
		func(ctx context.Context) (*floodgate.Message, error) {
			return s.upstream.ForwardMessage(ctx, req)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, msg)
}

func (s *Server) handleGetChats(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	chats, err := floodgate.Do(s.shield, r.Context(), floodgate.ReadKeys(),
		func(ctx context.Context) ([]floodgate.Chat, error) {
			return s.upstream.GetChats(ctx, page, pageSize)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, chats)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		s.writeError(w, http.StatusBadRequest, "chat_id must not be empty", "BAD_REQUEST")
		return
	}
	page, pageSize := pagination(r)

	msgs, err := floodgate.Do(s.shield, r.Context(), floodgate.ReadKeys(),
		func(ctx context.Context) ([]floodgate.Message, error) {
			return s.upstream.GetMessages(ctx, chatID, page, pageSize)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, msgs)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := floodgate.Do(s.shield, r.Context(), floodgate.ReadKeys(),
		func(ctx context.Context) (*floodgate.User, error) {
			return s.upstream.GetMe(ctx)
		})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeData(w, user)
}

func pagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = defaultPageSize
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 {
		pageSize = min(ps, maxPageSize)
	}
	return page, pageSize
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
		return false
	}
	return true
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode response", "INTERNAL")
		return
	}
	s.writeEnvelope(w, http.StatusOK, floodgate.Envelope{Success: true, Data: raw})
}

func (s *Server) writeError(w http.ResponseWriter, status int, errMsg, errCode string) {
	s.writeEnvelope(w, status, floodgate.Envelope{
		Success:   false,
		Error:     errMsg,
		ErrorCode: errCode,
	})
}

// writeThrottled writes a 429 error carrying the wait in the Retry-After
// header and the envelope parameters, both spellings populated.
func (s *Server) writeThrottled(w http.ResponseWriter, wait time.Duration, errCode, errMsg string) {
	seconds := math.Ceil(wait.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(int(seconds)))
	s.writeEnvelope(w, http.StatusTooManyRequests, floodgate.Envelope{
		Success:   false,
		Error:     errMsg,
		ErrorCode: errCode,
		Parameters: &floodgate.ResponseParameters{
			RetryAfter: seconds,
			Seconds:    seconds,
		},
	})
}

// writeFailure maps a shield-classified failure onto the wire.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var floodErr *classify.FloodWaitError
	if errors.As(err, &floodErr) {
		seconds := int(math.Ceil(floodErr.Wait.Seconds()))
		s.writeThrottled(w, floodErr.Wait,
			fmt.Sprintf("FLOOD_WAIT_%d", seconds),
			fmt.Sprintf("flood control: a wait of %d seconds is required", seconds))
		return
	}

	var rlErr *classify.RateLimitError
	if errors.As(err, &rlErr) {
		s.writeThrottled(w, rlErr.RetryAfter, "RATE_LIMITED", "upstream rate limit exceeded")
		return
	}

	if errors.Is(err, classify.ErrMaxRetries) {
		s.writeError(w, http.StatusBadGateway, "upstream unavailable after retries", "UPSTREAM_UNAVAILABLE")
		return
	}

	if errors.Is(err, client.ErrCircuitOpen) {
		s.writeError(w, http.StatusServiceUnavailable, "upstream circuit open", "UPSTREAM_UNAVAILABLE")
		return
	}

	// Upstream protocol errors pass through as envelope failures: the
	// transport leg succeeded, so the status stays 200.
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		s.writeError(w, http.StatusOK, apiErr.Description, apiErr.Code)
		return
	}

	s.logger.Error("request failed",
		"request_id", RequestID(r.Context()),
		"error", err,
	)
	s.writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env floodgate.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
