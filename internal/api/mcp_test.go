package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tbrandt/changebot/internal/dialogue"
	"github.com/tbrandt/changebot/internal/servicenow"
	"github.com/tbrandt/changebot/internal/storage"
)

func newTestMCPDeps(t *testing.T) (Deps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := dialogue.NewRegistry(store, servicenow.NewLocal(store))
	return Deps{Store: store, Engine: dialogue.NewEngine(store, registry)}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_SendMessage(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSendMessage(deps)

	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"message": "create a change request",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var turn dialogue.TurnResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &turn); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if turn.Intent != "create_change_request" {
		t.Errorf("intent = %q", turn.Intent)
	}
	if turn.ConversationID == "" {
		t.Error("missing conversation_id")
	}

	// Continue the conversation through the tool.
	result, err = handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"message":         "Upgrade DB",
		"conversation_id": turn.ConversationID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var turn2 dialogue.TurnResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &turn2); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if turn2.ConversationID != turn.ConversationID {
		t.Error("conversation id changed")
	}
	if turn2.CollectedData["short_description"] != "Upgrade DB" {
		t.Errorf("collected_data = %v", turn2.CollectedData)
	}
}

func TestMCPTool_SendMessage_Errors(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSendMessage(deps)

	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("missing message did not produce a tool error")
	}

	result, err = handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"message":         "hi",
		"conversation_id": "no-such-id",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("unknown conversation did not produce a tool error")
	}
}

func TestMCPTool_CheckChangeRequest(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCheckChangeRequest(deps)

	if _, err := store.SaveChangeRequest(storage.ChangeRequest{
		SysID: "sys-1", Number: "CHG0000123", ShortDescription: "Patch", State: "New", Priority: "3",
	}); err != nil {
		t.Fatalf("SaveChangeRequest: %v", err)
	}

	// Lookup normalizes case and padding.
	result, err := handler(context.Background(), makeCallToolRequest("check_change_request", map[string]interface{}{
		"number": "  chg0000123  ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var cr storage.ChangeRequest
	if err := json.Unmarshal([]byte(toolText(t, result)), &cr); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if cr.Number != "CHG0000123" {
		t.Errorf("number = %q", cr.Number)
	}

	result, err = handler(context.Background(), makeCallToolRequest("check_change_request", map[string]interface{}{
		"number": "CHG9999999",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("unknown number did not produce a tool error")
	}
}

func TestMCPTool_ListChangeRequests(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpListChangeRequests(deps)

	for i := 1; i <= 3; i++ {
		if _, err := store.SaveChangeRequest(storage.ChangeRequest{
			SysID: string(rune('a' + i)), Number: "CHG000000" + string(rune('0'+i)),
			ShortDescription: "change", State: "New", Priority: "3",
		}); err != nil {
			t.Fatalf("SaveChangeRequest %d: %v", i, err)
		}
	}

	result, err := handler(context.Background(), makeCallToolRequest("list_change_requests", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var changes []storage.ChangeRequest
	if err := json.Unmarshal([]byte(toolText(t, result)), &changes); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Number != "CHG0000003" {
		t.Errorf("first number = %q, want most recent", changes[0].Number)
	}
}

func TestMCPResource_Conversations(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpResourceConversations(deps)

	if _, err := store.CreateConversation(); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "chat://conversations"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []map[string]string
	if err := json.Unmarshal([]byte(text.Text), &summaries); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(summaries))
	}
	if summaries[0]["status"] != storage.StatusActive {
		t.Errorf("status = %q", summaries[0]["status"])
	}
}
