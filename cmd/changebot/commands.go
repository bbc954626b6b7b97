package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbrandt/changebot/internal/storage"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/chat/conversations")
		if err != nil {
			return err
		}

		var conversations []storage.Conversation
		if err := decodeJSON(resp, &conversations); err != nil {
			return err
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, c := range conversations {
			fmt.Printf("%s  [%s]  started %s  updated %s\n",
				c.ID, c.Status,
				c.StartedAt.Format("2006-01-02 15:04"),
				c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// conversationDetail mirrors the GET /api/chat/conversations/{id} response.
type conversationDetail struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Messages  []struct {
		Sender    string          `json:"sender"`
		Text      string          `json:"text"`
		Timestamp time.Time       `json:"timestamp"`
		Metadata  json.RawMessage `json:"metadata,omitempty"`
	} `json:"messages"`
	Context struct {
		Intent         string            `json:"intent"`
		CollectedData  map[string]string `json:"collected_data"`
		RequiredFields []string          `json:"required_fields"`
		NextField      *string           `json:"next_field"`
	} `json:"context"`
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/chat/conversations/"+args[0])
		if err != nil {
			return err
		}

		var detail conversationDetail
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}

		fmt.Printf("Conversation %s [%s], started %s\n\n",
			detail.ID, detail.Status, detail.StartedAt.Format("2006-01-02 15:04"))
		for _, m := range detail.Messages {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Text)
		}
		if detail.Context.Intent != "" {
			fmt.Printf("\nIntent: %s\n", detail.Context.Intent)
		}
		if detail.Context.NextField != nil {
			fmt.Printf("Waiting for: %s\n", *detail.Context.NextField)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/chat/conversations/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Conversation %s deleted", args[0])
		return nil
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Browse change requests",
}

var changesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List change requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/change-requests")
		if err != nil {
			return err
		}

		var changes []storage.ChangeRequest
		if err := decodeJSON(resp, &changes); err != nil {
			return err
		}

		if len(changes) == 0 {
			fmt.Println("No change requests yet.")
			return nil
		}
		for _, cr := range changes {
			fmt.Printf("%s  P%s  [%s]  %s\n", cr.Number, cr.Priority, cr.State, cr.ShortDescription)
		}
		return nil
	},
}

var changesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a change request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/change-requests/"+args[0])
		if err != nil {
			return err
		}

		var cr storage.ChangeRequest
		if err := decodeJSON(resp, &cr); err != nil {
			return err
		}

		fmt.Printf("Number:      %s\n", cr.Number)
		fmt.Printf("Sys ID:      %s\n", cr.SysID)
		fmt.Printf("State:       %s\n", cr.State)
		fmt.Printf("Priority:    %s\n", cr.Priority)
		fmt.Printf("Summary:     %s\n", cr.ShortDescription)
		if cr.Description != "" {
			fmt.Printf("Description: %s\n", cr.Description)
		}
		if cr.JiraIssueKey != "" {
			fmt.Printf("Jira:        %s\n", cr.JiraIssueKey)
		}
		if cr.GitHubRepo != "" {
			fmt.Printf("GitHub:      %s#%d\n", cr.GitHubRepo, cr.GitHubPRNumber)
		}
		fmt.Printf("Created:     %s\n", cr.CreatedAt.Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsDeleteCmd)
	changesCmd.AddCommand(changesListCmd, changesShowCmd)
}
