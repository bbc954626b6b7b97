package storage

import (
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_conversations_updated", "idx_messages_conversation", "idx_change_requests_number", "idx_change_requests_jira"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := openTestStore(t)

	conv, err := s.CreateConversation()
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected non-empty conversation id")
	}
	if conv.Status != StatusActive {
		t.Errorf("new conversation status = %q, want %q", conv.Status, StatusActive)
	}

	got, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.ID != conv.ID || got.Status != StatusActive {
		t.Errorf("GetConversation mismatch: got %+v", got)
	}

	if err := s.SetConversationStatus(conv.ID, StatusCompleted); err != nil {
		t.Fatalf("SetConversationStatus: %v", err)
	}
	got, err = s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation after complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, StatusCompleted)
	}

	// Completed is terminal: downgrade attempts are silent no-ops.
	if err := s.SetConversationStatus(conv.ID, StatusActive); err != nil {
		t.Fatalf("SetConversationStatus downgrade: %v", err)
	}
	got, err = s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation after downgrade attempt: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status after downgrade attempt = %q, want %q", got.Status, StatusCompleted)
	}

	if err := s.SetConversationStatus("no-such-id", StatusAbandoned); err != ErrNotFound {
		t.Errorf("SetConversationStatus(unknown) = %v, want ErrNotFound", err)
	}
	if _, err := s.GetConversation("no-such-id"); err != ErrNotFound {
		t.Errorf("GetConversation(unknown) = %v, want ErrNotFound", err)
	}
}

func TestMessagesOrderedByInsertion(t *testing.T) {
	s := openTestStore(t)

	conv, err := s.CreateConversation()
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	texts := []string{"hello", "hi, how can I help?", "create a change request"}
	senders := []string{SenderUser, SenderBot, SenderUser}
	for i := range texts {
		if _, err := s.AppendMessage(conv.ID, senders[i], texts[i], ""); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	messages, err := s.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != len(texts) {
		t.Fatalf("got %d messages, want %d", len(messages), len(texts))
	}
	for i, m := range messages {
		if m.Text != texts[i] || m.Sender != senders[i] {
			t.Errorf("message %d = %q/%q, want %q/%q", i, m.Sender, m.Text, senders[i], texts[i])
		}
	}
}

func TestMessageMetadataRoundTrip(t *testing.T) {
	s := openTestStore(t)

	conv, err := s.CreateConversation()
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	meta := `{"number":"CHG0000001","sys_id":"abc"}`
	if _, err := s.AppendMessage(conv.ID, SenderBot, "done", meta); err != nil {
		t.Fatalf("AppendMessage with metadata: %v", err)
	}
	if _, err := s.AppendMessage(conv.ID, SenderUser, "thanks", ""); err != nil {
		t.Fatalf("AppendMessage without metadata: %v", err)
	}

	messages, err := s.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if messages[0].Metadata != meta {
		t.Errorf("metadata = %q, want %q", messages[0].Metadata, meta)
	}
	if messages[1].Metadata != "" {
		t.Errorf("empty metadata came back as %q", messages[1].Metadata)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := openTestStore(t)

	conv, err := s.CreateConversation()
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := s.AppendMessage(conv.ID, SenderUser, "hello", ""); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := s.GetOrCreateContext(conv.ID); err != nil {
		t.Fatalf("GetOrCreateContext: %v", err)
	}

	if err := s.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conv.ID).Scan(&count); err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 0 {
		t.Errorf("messages survived delete: %d", count)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM contexts WHERE conversation_id = ?", conv.ID).Scan(&count); err != nil {
		t.Fatalf("counting contexts: %v", err)
	}
	if count != 0 {
		t.Errorf("context survived delete: %d", count)
	}

	if err := s.DeleteConversation(conv.ID); err != ErrNotFound {
		t.Errorf("second DeleteConversation = %v, want ErrNotFound", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	s := openTestStore(t)

	conv, err := s.CreateConversation()
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	dctx, err := s.GetOrCreateContext(conv.ID)
	if err != nil {
		t.Fatalf("GetOrCreateContext: %v", err)
	}
	if dctx.Intent != "" || len(dctx.CollectedData) != 0 || len(dctx.RequiredFields) != 0 {
		t.Fatalf("fresh context not empty: %+v", dctx)
	}

	dctx.Intent = "create_change_request"
	dctx.CollectedData = map[string]string{"short_description": "Upgrade DB"}
	dctx.RequiredFields = []string{"description", "priority"}
	dctx.NextField = "description"
	dctx.ChangeRequestID = 7
	if err := s.SaveContext(dctx); err != nil {
		t.Fatalf("SaveContext: %v", err)
	}

	got, err := s.GetOrCreateContext(conv.ID)
	if err != nil {
		t.Fatalf("GetOrCreateContext reload: %v", err)
	}
	if got.Intent != dctx.Intent || got.NextField != dctx.NextField || got.ChangeRequestID != 7 {
		t.Errorf("context mismatch: got %+v", got)
	}
	if got.CollectedData["short_description"] != "Upgrade DB" {
		t.Errorf("collected_data lost: %v", got.CollectedData)
	}
	if len(got.RequiredFields) != 2 || got.RequiredFields[0] != "description" {
		t.Errorf("required_fields lost: %v", got.RequiredFields)
	}

	if err := s.SaveContext(&ConversationContext{ConversationID: "no-such-id"}); err != ErrNotFound {
		t.Errorf("SaveContext(unknown) = %v, want ErrNotFound", err)
	}
}

func TestChangeRequestRoundTrip(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.SaveChangeRequest(ChangeRequest{
		SysID:            "sys-1",
		Number:           "CHG0000042",
		ShortDescription: "Patch web tier",
		Description:      "Apply security patches",
		State:            "New",
		Priority:         "2",
	})
	if err != nil {
		t.Fatalf("SaveChangeRequest: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := s.GetChangeRequest(saved.ID)
	if err != nil {
		t.Fatalf("GetChangeRequest: %v", err)
	}
	if got.Number != "CHG0000042" || got.Priority != "2" || got.State != "New" {
		t.Errorf("GetChangeRequest mismatch: %+v", got)
	}

	byNumber, err := s.FindChangeRequestByNumber("CHG0000042")
	if err != nil {
		t.Fatalf("FindChangeRequestByNumber: %v", err)
	}
	if byNumber.ID != saved.ID {
		t.Errorf("FindChangeRequestByNumber id = %d, want %d", byNumber.ID, saved.ID)
	}

	// Lookup is exact: unnormalized input does not match.
	if _, err := s.FindChangeRequestByNumber("chg0000042"); err != ErrNotFound {
		t.Errorf("lowercase lookup = %v, want ErrNotFound", err)
	}
	if _, err := s.GetChangeRequest(9999); err != ErrNotFound {
		t.Errorf("GetChangeRequest(9999) = %v, want ErrNotFound", err)
	}
}

func TestListChangeRequestsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		_, err := s.SaveChangeRequest(ChangeRequest{
			SysID:            "sys-" + string(rune('a'+i-1)),
			Number:           "CHG000000" + string(rune('0'+i)),
			ShortDescription: "change",
			State:            "New",
			Priority:         "3",
		})
		if err != nil {
			t.Fatalf("SaveChangeRequest %d: %v", i, err)
		}
	}

	changes, err := s.ListChangeRequests(2)
	if err != nil {
		t.Fatalf("ListChangeRequests: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].Number != "CHG0000003" || changes[1].Number != "CHG0000002" {
		t.Errorf("wrong order: %s, %s", changes[0].Number, changes[1].Number)
	}
}

func TestNextChangeNumber(t *testing.T) {
	s := openTestStore(t)

	n, err := s.NextChangeNumber()
	if err != nil {
		t.Fatalf("NextChangeNumber on empty store: %v", err)
	}
	if n != "CHG0000001" {
		t.Errorf("first number = %q, want CHG0000001", n)
	}

	if _, err := s.SaveChangeRequest(ChangeRequest{
		SysID: "sys-x", Number: "CHG0000009", ShortDescription: "x", State: "New", Priority: "3",
	}); err != nil {
		t.Fatalf("SaveChangeRequest: %v", err)
	}

	n, err = s.NextChangeNumber()
	if err != nil {
		t.Fatalf("NextChangeNumber: %v", err)
	}
	if n != "CHG0000010" {
		t.Errorf("next number = %q, want CHG0000010", n)
	}
}
