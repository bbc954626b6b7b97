package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tbrandt/changebot/internal/storage"
)

// NewMCPServer creates an MCP server exposing the chatbot dialogue and the
// change-request mirror as tools and resources.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"changebot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("changebot: conversational assistant for creating and tracking IT change requests."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send one chat message to the change-management assistant and get its reply plus the dialogue state."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue; omit to start a new one")),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("check_change_request",
			mcp.WithDescription("Look up a change request by its human-readable number (e.g. CHG0001234)."),
			mcp.WithString("number", mcp.Description("Change request number"), mcp.Required()),
		),
		mcpCheckChangeRequest(deps),
	)

	s.AddTool(
		mcp.NewTool("list_change_requests",
			mcp.WithDescription("List recent change requests."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListChangeRequests(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"chat://conversations",
			"Conversations",
			mcp.WithResourceDescription("Recent chatbot conversations as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConversations(deps),
	)

	return s
}

func mcpSendMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		conversationID := req.GetString("conversation_id", "")

		resp, err := deps.Engine.ProcessTurn(ctx, conversationID, message)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("conversation %s not found", conversationID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to process message: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCheckChangeRequest(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		number, err := req.RequireString("number")
		if err != nil {
			return mcpError("number is required"), nil
		}
		number = strings.ToUpper(strings.TrimSpace(number))

		cr, err := deps.Store.FindChangeRequestByNumber(number)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no change request with number %s", number)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(cr)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal change request: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListChangeRequests(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		changes, err := deps.Store.ListChangeRequests(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list change requests: %v", err)), nil
		}
		if changes == nil {
			changes = []storage.ChangeRequest{}
		}

		b, err := json.Marshal(changes)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal change requests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceConversations(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		conversations, err := deps.Store.ListConversations()
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}

		type conversationSummary struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			StartedAt string `json:"started_at"`
			UpdatedAt string `json:"updated_at"`
		}

		summaries := make([]conversationSummary, 0, len(conversations))
		for i, c := range conversations {
			if i == 20 {
				break
			}
			summaries = append(summaries, conversationSummary{
				ID:        c.ID,
				Status:    c.Status,
				StartedAt: c.StartedAt.Format(time.RFC3339),
				UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
			})
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
