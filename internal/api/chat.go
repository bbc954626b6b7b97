package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/tbrandt/changebot/internal/dialogue"
	"github.com/tbrandt/changebot/internal/storage"
)

// ChatMessageRequest is the body of POST /api/chat/message.
type ChatMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func handleChatMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		// Malformed turns are rejected before any state is touched.
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message: this field is required")
			return
		}
		if utf8.RuneCountInString(req.Message) > dialogue.MaxMessageLength {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"message: must be at most %d characters", dialogue.MaxMessageLength)
			return
		}

		resp, err := deps.Engine.ProcessTurn(r.Context(), req.ConversationID, req.Message)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process message: %v", err)
			return
		}

		writeJSON(w, resp)
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversations, err := deps.Store.ListConversations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversations: %v", err)
			return
		}
		if conversations == nil {
			conversations = []storage.Conversation{}
		}
		writeJSON(w, conversations)
	}
}

// conversationDetail is a conversation with its transcript and context.
type conversationDetail struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []messageView `json:"messages"`
	Context   contextView   `json:"context"`
}

type messageView struct {
	ID        int64           `json:"id"`
	Sender    string          `json:"sender"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type contextView struct {
	Intent         string            `json:"intent"`
	CollectedData  map[string]string `json:"collected_data"`
	RequiredFields []string          `json:"required_fields"`
	NextField      *string           `json:"next_field"`
	ChangeRequest  int64             `json:"change_request,omitempty"`
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conv, err := deps.Store.GetConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversation: %v", err)
			return
		}

		messages, err := deps.Store.ListMessages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		dctx, err := deps.Store.GetOrCreateContext(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load context: %v", err)
			return
		}

		detail := conversationDetail{
			ID:        conv.ID,
			Status:    conv.Status,
			StartedAt: conv.StartedAt,
			UpdatedAt: conv.UpdatedAt,
			Messages:  make([]messageView, 0, len(messages)),
			Context: contextView{
				Intent:         dctx.Intent,
				CollectedData:  dctx.CollectedData,
				RequiredFields: dctx.RequiredFields,
				ChangeRequest:  dctx.ChangeRequestID,
			},
		}
		if detail.Context.RequiredFields == nil {
			detail.Context.RequiredFields = []string{}
		}
		if dctx.NextField != "" {
			next := dctx.NextField
			detail.Context.NextField = &next
		}
		for _, m := range messages {
			mv := messageView{
				ID:        m.ID,
				Sender:    m.Sender,
				Text:      m.Text,
				Timestamp: m.CreatedAt,
			}
			if m.Metadata != "" {
				mv.Metadata = json.RawMessage(m.Metadata)
			}
			detail.Messages = append(detail.Messages, mv)
		}

		writeJSON(w, detail)
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete conversation: %v", err)
			return
		}
		deps.Engine.ForgetConversation(id)

		writeJSON(w, map[string]string{"message": "Conversation deleted successfully"})
	}
}
