package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateConversation inserts a new active conversation and returns it.
func (s *Store) CreateConversation() (Conversation, error) {
	now := time.Now().UTC()
	c := Conversation{
		ID:        uuid.New().String(),
		Status:    StatusActive,
		StartedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, status, started_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.Status, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var startedAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, status, started_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Status, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

// ListConversations returns conversations ordered by most recent activity.
func (s *Store) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, status, started_at, updated_at
		FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var startedAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Status, &startedAt, &updatedAt); err != nil {
			return nil, err
		}
		if c.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// SetConversationStatus updates the lifecycle status. Completed conversations
// stay completed; a downgrade attempt is a silent no-op.
func (s *Store) SetConversationStatus(id, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE conversations SET status = ?, updated_at = ?
		WHERE id = ? AND (status != ? OR ? = ?)`,
		status, now, id, StatusCompleted, status, StatusCompleted,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either unknown id or a completed conversation being downgraded.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM conversations WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// DeleteConversation removes a conversation. Its messages and context go with
// it via foreign-key cascade.
func (s *Store) DeleteConversation(id string) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage adds a message to the conversation transcript. metadata may be
// empty; otherwise it must be a JSON object serialized as text.
func (s *Store) AppendMessage(conversationID, sender, text, metadata string) (Message, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO messages (conversation_id, sender, text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, sender, text, nullableString(metadata), now.Format(time.RFC3339),
	)
	if err != nil {
		return Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	if _, err := s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339), conversationID); err != nil {
		return Message{}, err
	}
	return Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		Metadata:       metadata,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns the transcript in insertion order.
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, sender, text, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Text, &metadata, &createdAt); err != nil {
			return nil, err
		}
		m.Metadata = metadata.String
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// GetOrCreateContext returns the conversation's context, creating an empty one
// on first use. Idempotent.
func (s *Store) GetOrCreateContext(conversationID string) (*ConversationContext, error) {
	dctx, err := s.getContext(conversationID)
	if err == nil {
		return dctx, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	if _, err := s.db.Exec(`
		INSERT INTO contexts (conversation_id) VALUES (?)
		ON CONFLICT(conversation_id) DO NOTHING`, conversationID); err != nil {
		return nil, err
	}
	return &ConversationContext{
		ConversationID: conversationID,
		CollectedData:  map[string]string{},
	}, nil
}

func (s *Store) getContext(conversationID string) (*ConversationContext, error) {
	var dctx ConversationContext
	var collected, required string
	err := s.db.QueryRow(`
		SELECT conversation_id, intent, collected_data, required_fields, next_field, change_request_id
		FROM contexts WHERE conversation_id = ?`, conversationID,
	).Scan(&dctx.ConversationID, &dctx.Intent, &collected, &required, &dctx.NextField, &dctx.ChangeRequestID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(collected), &dctx.CollectedData); err != nil {
		return nil, fmt.Errorf("parsing collected_data: %w", err)
	}
	if err := json.Unmarshal([]byte(required), &dctx.RequiredFields); err != nil {
		return nil, fmt.Errorf("parsing required_fields: %w", err)
	}
	if dctx.CollectedData == nil {
		dctx.CollectedData = map[string]string{}
	}
	return &dctx, nil
}

// SaveContext persists the context snapshot. The row must already exist
// (GetOrCreateContext creates it).
func (s *Store) SaveContext(dctx *ConversationContext) error {
	collected, err := json.Marshal(dctx.CollectedData)
	if err != nil {
		return fmt.Errorf("marshaling collected_data: %w", err)
	}
	required := []byte("[]")
	if dctx.RequiredFields != nil {
		if required, err = json.Marshal(dctx.RequiredFields); err != nil {
			return fmt.Errorf("marshaling required_fields: %w", err)
		}
	}

	res, err := s.db.Exec(`
		UPDATE contexts
		SET intent = ?, collected_data = ?, required_fields = ?, next_field = ?, change_request_id = ?
		WHERE conversation_id = ?`,
		dctx.Intent, string(collected), string(required), dctx.NextField,
		dctx.ChangeRequestID, dctx.ConversationID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
