package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tbrandt/changebot/internal/intent"
	"github.com/tbrandt/changebot/internal/storage"
)

// MaxMessageLength is the longest user message accepted for one turn.
const MaxMessageLength = 2000

// TurnResponse is the snapshot returned after processing one turn.
type TurnResponse struct {
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent"`
	BotMessage     string            `json:"bot_message"`
	RequiredFields []string          `json:"required_fields"`
	CollectedData  map[string]string `json:"collected_data"`
	NextField      *string           `json:"next_field"`
	IsComplete     bool              `json:"is_complete"`
	ChangeRequest  *RecordRef        `json:"change_request,omitempty"`
}

// Engine runs the per-turn dialogue loop: classify the message, reset the
// context on an intent switch, delegate to the matching handler, and record
// the transcript.
type Engine struct {
	store    *storage.Store
	contexts *Contexts
	registry *Registry

	// Turns on the same conversation are serialized; distinct conversations
	// proceed in parallel.
	mu    sync.Mutex
	turns map[string]*sync.Mutex
}

func NewEngine(store *storage.Store, registry *Registry) *Engine {
	return &Engine{
		store:    store,
		contexts: NewContexts(store),
		registry: registry,
		turns:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) turnLock(conversationID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.turns[conversationID]
	if !ok {
		l = &sync.Mutex{}
		e.turns[conversationID] = l
	}
	return l
}

// ForgetConversation drops the turn lock for a conversation that no longer
// exists. Called after deletion so the lock map does not grow unbounded.
func (e *Engine) ForgetConversation(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.turns, conversationID)
}

// ProcessTurn handles one user message and returns the bot's reply together
// with the now-current context snapshot. An empty conversationID starts a new
// conversation; an unknown one returns storage.ErrNotFound. Handler-internal
// failures never surface as errors; they become bot replies.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, message string) (TurnResponse, error) {
	var conv storage.Conversation
	var err error
	if conversationID == "" {
		conv, err = e.store.CreateConversation()
		if err != nil {
			return TurnResponse{}, fmt.Errorf("creating conversation: %w", err)
		}
	} else {
		conv, err = e.store.GetConversation(conversationID)
		if err != nil {
			return TurnResponse{}, err
		}
	}

	lock := e.turnLock(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	dctx, err := e.contexts.GetOrCreate(conv.ID)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("loading context: %w", err)
	}

	// The user message is always recorded, even if the handler re-prompts.
	if _, err := e.store.AppendMessage(conv.ID, storage.SenderUser, message, ""); err != nil {
		return TurnResponse{}, fmt.Errorf("recording user message: %w", err)
	}

	detected := intent.Detect(message, dctx.Intent)

	// Abandoning an active flow for a new one resets the context first. On a
	// conversation's very first turn there is no previous intent, so this
	// never fires then.
	if detected != dctx.Intent && dctx.Intent != "" {
		if err := e.contexts.Reset(dctx); err != nil {
			return TurnResponse{}, fmt.Errorf("resetting context: %w", err)
		}
		dctx.Intent = detected
		if err := e.contexts.Save(dctx); err != nil {
			return TurnResponse{}, fmt.Errorf("saving context: %w", err)
		}
	}

	result := e.registry.Get(detected).Handle(ctx, dctx, message)

	metadata := ""
	if result.ChangeRequest != nil {
		b, err := json.Marshal(result.ChangeRequest)
		if err != nil {
			return TurnResponse{}, fmt.Errorf("marshaling record metadata: %w", err)
		}
		metadata = string(b)
	}
	if _, err := e.store.AppendMessage(conv.ID, storage.SenderBot, result.BotMessage, metadata); err != nil {
		return TurnResponse{}, fmt.Errorf("recording bot message: %w", err)
	}

	if result.IsComplete {
		if err := e.store.SetConversationStatus(conv.ID, storage.StatusCompleted); err != nil {
			return TurnResponse{}, fmt.Errorf("completing conversation: %w", err)
		}
	}

	return buildTurnResponse(conv.ID, dctx, result), nil
}

// buildTurnResponse reads the snapshot straight off the context the handler
// mutated; there is no re-read from storage.
func buildTurnResponse(conversationID string, dctx *storage.ConversationContext, result Result) TurnResponse {
	resp := TurnResponse{
		ConversationID: conversationID,
		Intent:         dctx.Intent,
		BotMessage:     result.BotMessage,
		RequiredFields: dctx.RequiredFields,
		CollectedData:  dctx.CollectedData,
		IsComplete:     result.IsComplete,
		ChangeRequest:  result.ChangeRequest,
	}
	if resp.Intent == "" {
		resp.Intent = intent.Unknown
	}
	if resp.RequiredFields == nil {
		resp.RequiredFields = []string{}
	}
	if resp.CollectedData == nil {
		resp.CollectedData = map[string]string{}
	}
	if dctx.NextField != "" {
		next := dctx.NextField
		resp.NextField = &next
	}
	return resp
}
