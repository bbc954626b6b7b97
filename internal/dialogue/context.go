// Package dialogue implements the turn-processing core of the chatbot:
// per-conversation context tracking, slot-filling intent handlers, and the
// engine that routes one user message to one bot reply.
package dialogue

import (
	"github.com/tbrandt/changebot/internal/storage"
)

// Contexts loads, saves, and resets per-conversation dialogue state.
type Contexts struct {
	store *storage.Store
}

func NewContexts(store *storage.Store) *Contexts {
	return &Contexts{store: store}
}

// GetOrCreate returns the conversation's context, creating an empty one on
// first use. Idempotent.
func (c *Contexts) GetOrCreate(conversationID string) (*storage.ConversationContext, error) {
	return c.store.GetOrCreateContext(conversationID)
}

// Reset clears the context for a new intent and persists the cleared state.
func (c *Contexts) Reset(dctx *storage.ConversationContext) error {
	dctx.Intent = ""
	dctx.CollectedData = map[string]string{}
	dctx.RequiredFields = nil
	dctx.NextField = ""
	dctx.ChangeRequestID = 0
	return c.store.SaveContext(dctx)
}

// Save persists the context snapshot.
func (c *Contexts) Save(dctx *storage.ConversationContext) error {
	return c.store.SaveContext(dctx)
}

// IsActive reports whether the context has a slot-filling flow in progress.
func IsActive(dctx *storage.ConversationContext) bool {
	return dctx.Intent != "" && len(dctx.RequiredFields) > 0
}
