// Package api exposes the chatbot over HTTP and MCP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tbrandt/changebot/internal/dialogue"
	"github.com/tbrandt/changebot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP handlers need.
type Deps struct {
	Store  *storage.Store
	Engine *dialogue.Engine
}

// NewHandler returns the HTTP handler for the chat API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat/message", handleChatMessage(deps))
		r.Get("/chat/conversations", handleListConversations(deps))
		r.Get("/chat/conversations/{id}", handleGetConversation(deps))
		r.Delete("/chat/conversations/{id}", handleDeleteConversation(deps))

		r.Get("/change-requests", handleListChangeRequests(deps))
		r.Get("/change-requests/{id}", handleGetChangeRequest(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
