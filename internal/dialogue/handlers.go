package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tbrandt/changebot/internal/intent"
	"github.com/tbrandt/changebot/internal/servicenow"
	"github.com/tbrandt/changebot/internal/storage"
)

// TicketSystem creates change requests in the external ticket system.
// It is satisfied by both servicenow.Client and servicenow.Local.
type TicketSystem interface {
	CreateChangeRequest(ctx context.Context, fields map[string]string) (servicenow.Record, error)
}

// RecordRef identifies a change record attached to a turn result.
type RecordRef struct {
	Number string `json:"number"`
	SysID  string `json:"sys_id"`
	ID     int64  `json:"id"`
}

// Result is what a handler produces for one turn. Every handler path yields a
// bot message; failures inside a handler become conversational replies, never
// errors.
type Result struct {
	BotMessage    string
	IsComplete    bool
	ChangeRequest *RecordRef
}

// Handler processes one user message against the conversation's context.
// Handlers mutate the context in place and persist it before returning.
type Handler interface {
	Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result
}

// Registry maps intent labels to handlers. Labels without a handler (such as
// update_change_request and list_changes, which are classified but not yet
// implemented) route to the unknown handler.
type Registry struct {
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry builds the default registry backed by the given store and
// ticket system.
func NewRegistry(store *storage.Store, tickets TicketSystem) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		fallback: UnknownHandler{},
	}
	r.Register(intent.CreateChangeRequest, &CreateChangeRequestHandler{store: store, tickets: tickets})
	r.Register(intent.CheckStatus, &CheckStatusHandler{store: store})
	r.Register(intent.Help, HelpHandler{})
	r.Register(intent.Greeting, GreetingHandler{})
	r.Register(intent.Unknown, UnknownHandler{})
	return r
}

// Register installs (or replaces) the handler for a label. Tests use this to
// substitute fakes.
func (r *Registry) Register(label string, h Handler) {
	r.handlers[label] = h
}

// Get returns the handler for a label, falling back to unknown.
func (r *Registry) Get(label string) Handler {
	if h, ok := r.handlers[label]; ok {
		return h
	}
	return r.fallback
}

// --- create_change_request ---

var createFields = []string{
	"short_description",
	"description",
	"priority",
	"planned_start_date",
	"planned_end_date",
}

var createPrompts = map[string]string{
	"short_description":  "What's a brief summary of the change?",
	"description":        "Please provide a detailed description of the change.",
	"priority":           "What's the priority? (1-Critical, 2-High, 3-Medium, 4-Low)",
	"planned_start_date": "When do you plan to start? (YYYY-MM-DD)",
	"planned_end_date":   "When should this be completed? (YYYY-MM-DD)",
}

// CreateChangeRequestHandler walks the user through the change-request fields
// one turn at a time, then submits the collected map to the ticket system and
// records the result locally.
type CreateChangeRequestHandler struct {
	store   *storage.Store
	tickets TicketSystem
}

func (h *CreateChangeRequestHandler) Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result {
	// A context that isn't mid-flow (wrong intent, or a finished flow with no
	// pending field) starts the collection from scratch. The triggering
	// message itself is never treated as a field answer.
	if dctx.Intent != intent.CreateChangeRequest || dctx.NextField == "" {
		return h.start(dctx)
	}

	field := dctx.NextField
	value := message
	if field == "priority" {
		value = strings.TrimSpace(value)
		if value != "1" && value != "2" && value != "3" && value != "4" {
			// Re-prompt; state does not advance.
			return Result{BotMessage: "Please enter a valid priority: 1 (Critical), 2 (High), 3 (Medium), or 4 (Low)"}
		}
	}

	dctx.CollectedData[field] = value
	dctx.RequiredFields = removeField(dctx.RequiredFields, field)

	if len(dctx.RequiredFields) > 0 {
		dctx.NextField = dctx.RequiredFields[0]
		if err := h.store.SaveContext(dctx); err != nil {
			return saveFailure(err)
		}
		return Result{BotMessage: createPrompts[dctx.NextField]}
	}

	return h.complete(ctx, dctx, field)
}

func (h *CreateChangeRequestHandler) start(dctx *storage.ConversationContext) Result {
	dctx.Intent = intent.CreateChangeRequest
	dctx.RequiredFields = append([]string(nil), createFields...)
	dctx.CollectedData = map[string]string{}
	dctx.NextField = createFields[0]
	dctx.ChangeRequestID = 0
	if err := h.store.SaveContext(dctx); err != nil {
		return saveFailure(err)
	}
	return Result{
		BotMessage: "I'll help you create a change request. " + createPrompts[dctx.NextField],
	}
}

// complete submits the collected fields. On failure the persisted context
// still holds lastField as pending, so the next message retries the submission
// without re-entering every field; the in-memory snapshot is rolled back to
// that same state before returning.
func (h *CreateChangeRequestHandler) complete(ctx context.Context, dctx *storage.ConversationContext, lastField string) Result {
	rec, err := h.tickets.CreateChangeRequest(ctx, dctx.CollectedData)
	if err != nil {
		slog.Warn("change request creation failed", "conversation", dctx.ConversationID, "error", err)
		restorePending(dctx, lastField)
		return Result{BotMessage: fmt.Sprintf("Sorry, I encountered an error creating the change request: %v", err)}
	}

	cr, err := h.store.SaveChangeRequest(storage.ChangeRequest{
		SysID:            rec.SysID,
		Number:           rec.Number,
		ShortDescription: dctx.CollectedData["short_description"],
		Description:      dctx.CollectedData["description"],
		Priority:         dctx.CollectedData["priority"],
		State:            rec.State,
	})
	if err != nil {
		slog.Error("saving change request mirror failed", "number", rec.Number, "error", err)
		restorePending(dctx, lastField)
		return Result{BotMessage: fmt.Sprintf("Sorry, I encountered an error creating the change request: %v", err)}
	}

	dctx.ChangeRequestID = cr.ID
	dctx.NextField = ""
	if err := h.store.SaveContext(dctx); err != nil {
		return saveFailure(err)
	}

	return Result{
		BotMessage: fmt.Sprintf("✓ Change request %s created successfully!\n\n"+
			"Summary: %s\nPriority: %s\nStatus: %s",
			cr.Number, cr.ShortDescription, cr.Priority, cr.State),
		IsComplete:    true,
		ChangeRequest: &RecordRef{Number: cr.Number, SysID: cr.SysID, ID: cr.ID},
	}
}

// --- check_status ---

// CheckStatusHandler collects a change number and replies with the record's
// details from the local mirror.
type CheckStatusHandler struct {
	store *storage.Store
}

func (h *CheckStatusHandler) Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result {
	if dctx.Intent != intent.CheckStatus || dctx.NextField == "" {
		dctx.Intent = intent.CheckStatus
		dctx.RequiredFields = []string{"change_number"}
		dctx.CollectedData = map[string]string{}
		dctx.NextField = "change_number"
		dctx.ChangeRequestID = 0
		if err := h.store.SaveContext(dctx); err != nil {
			return saveFailure(err)
		}
		return Result{BotMessage: "What's the change request number you want to check? (e.g., CHG0001234)"}
	}

	// Numbers are matched upper-cased and trimmed; storage holds the
	// canonical form.
	number := strings.ToUpper(strings.TrimSpace(message))

	cr, err := h.store.FindChangeRequestByNumber(number)
	if errors.Is(err, storage.ErrNotFound) {
		// Conversational miss, not an error: next_field stays change_number
		// so the user can retype.
		return Result{BotMessage: fmt.Sprintf("I couldn't find a change request with number %s. "+
			"Please check the number and try again.", number)}
	}
	if err != nil {
		slog.Error("change request lookup failed", "number", number, "error", err)
		return Result{BotMessage: fmt.Sprintf("Sorry, I encountered an error: %v", err)}
	}

	dctx.CollectedData["change_number"] = number
	dctx.RequiredFields = nil
	dctx.NextField = ""
	dctx.ChangeRequestID = cr.ID
	if err := h.store.SaveContext(dctx); err != nil {
		return saveFailure(err)
	}

	return Result{
		BotMessage: fmt.Sprintf("Change Request: %s\n\n"+
			"Summary: %s\nDescription: %s\nStatus: %s\nPriority: %s\nCreated: %s",
			cr.Number, cr.ShortDescription, cr.Description, cr.State, cr.Priority,
			cr.CreatedAt.Format("2006-01-02 15:04")),
		IsComplete:    true,
		ChangeRequest: &RecordRef{Number: cr.Number, SysID: cr.SysID, ID: cr.ID},
	}
}

// --- single-turn handlers ---

// HelpHandler replies with the command overview. Stateless.
type HelpHandler struct{}

func (HelpHandler) Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result {
	return Result{
		BotMessage: `I can help you with the following:

• Create a change request - Say "create a change request" or "new change"
• Check status - Say "check status of CHG0001234"
• List changes - Say "show all my changes"

What would you like to do?`,
		IsComplete: true,
	}
}

// GreetingHandler replies with the welcome message. Stateless.
type GreetingHandler struct{}

func (GreetingHandler) Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result {
	return Result{
		BotMessage: "Hello! I'm your IT Change Management Assistant. " +
			"I can help you create and manage ServiceNow change requests.\n\n" +
			"Say 'help' to see what I can do!",
		IsComplete: true,
	}
}

// UnknownHandler terminates a turn that matched no intent.
type UnknownHandler struct{}

func (UnknownHandler) Handle(ctx context.Context, dctx *storage.ConversationContext, message string) Result {
	return Result{
		BotMessage: "I'm not sure what you want to do. " +
			"Say 'help' to see what I can assist you with.",
		IsComplete: true,
	}
}

// restorePending undoes the in-memory consumption of the final field after a
// failed submission, so the snapshot matches the persisted context: the field
// is pending again and its value is not yet collected.
func restorePending(dctx *storage.ConversationContext, field string) {
	delete(dctx.CollectedData, field)
	dctx.RequiredFields = []string{field}
	dctx.NextField = field
}

func removeField(fields []string, field string) []string {
	out := fields[:0]
	for _, f := range fields {
		if f != field {
			out = append(out, f)
		}
	}
	return out
}

func saveFailure(err error) Result {
	slog.Error("saving conversation context failed", "error", err)
	return Result{BotMessage: "Sorry, something went wrong on my side. Please try again."}
}
