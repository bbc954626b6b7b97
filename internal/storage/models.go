package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation statuses. A conversation never leaves "completed".
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Message senders.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

type Conversation struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"-"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	Metadata       string    `json:"metadata,omitempty"` // JSON object stored as text
	CreatedAt      time.Time `json:"timestamp"`
}

// ConversationContext is the per-conversation dialogue state snapshot.
// Exactly one exists per conversation; it is deleted with the conversation.
type ConversationContext struct {
	ConversationID  string            `json:"-"`
	Intent          string            `json:"intent"` // empty = no active intent
	CollectedData   map[string]string `json:"collected_data"`
	RequiredFields  []string          `json:"required_fields"` // prompt order; head is the field being asked for
	NextField       string            `json:"next_field"`      // empty = nothing pending
	ChangeRequestID int64             `json:"change_request,omitempty"`
}

// IsComplete reports whether every required field has been collected.
func (c *ConversationContext) IsComplete() bool {
	return len(c.RequiredFields) == 0
}

// ChangeRequest mirrors a change record in the external ticket system,
// plus optional cross-links to related development artifacts.
type ChangeRequest struct {
	ID               int64     `json:"id"`
	SysID            string    `json:"sys_id"`
	Number           string    `json:"number"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description"`
	State            string    `json:"state"`
	Priority         string    `json:"priority"`
	JiraIssueKey     string    `json:"jira_issue_key,omitempty"`
	GitHubRepo       string    `json:"github_repo,omitempty"`
	GitHubPRNumber   int       `json:"github_pr_number,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
