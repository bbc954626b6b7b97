package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbrandt/changebot/internal/dialogue"
	"github.com/tbrandt/changebot/internal/storage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat session with the assistant",
	Long: `Interactive chat session with the assistant.

Commands inside the session:
  /new       start a new conversation
  /list      list conversations
  /changes   list change requests
  /quit      exit

Examples:
  > create a change request
  > check status of CHG0000001
  > help`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), client, os.Stdin)
	},
}

func runChat(ctx context.Context, client *apiClient, input *os.File) error {
	fmt.Println("changebot - IT Change Management Assistant")
	fmt.Println("Type /quit to exit, /new for a new conversation, help for commands.")
	fmt.Println()

	conversationID := ""
	scanner := bufio.NewScanner(input)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			fmt.Println("Goodbye!")
			return nil
		case "/new":
			conversationID = ""
			printSuccess("Started new conversation")
			continue
		case "/list":
			if err := printConversations(ctx, client); err != nil {
				printError("%v", err)
			}
			continue
		case "/changes":
			if err := printChanges(ctx, client); err != nil {
				printError("%v", err)
			}
			continue
		}

		req := map[string]any{"message": line}
		if conversationID != "" {
			req["conversation_id"] = conversationID
		}

		resp, err := client.post(ctx, "/api/chat/message", req)
		if err != nil {
			printError("%v", err)
			continue
		}

		var turn dialogue.TurnResponse
		if err := decodeJSON(resp, &turn); err != nil {
			printError("%v", err)
			continue
		}
		conversationID = turn.ConversationID

		fmt.Printf("\nBot: %s\n", turn.BotMessage)
		if turn.NextField != nil {
			fmt.Printf("     %s\n", colorize(colorCyan, "waiting for: "+*turn.NextField))
		}
		if turn.ChangeRequest != nil {
			printSuccess("Change request %s", turn.ChangeRequest.Number)
		}
		fmt.Println()
	}
}

func printConversations(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/api/chat/conversations")
	if err != nil {
		return err
	}

	var conversations []storage.Conversation
	if err := decodeJSON(resp, &conversations); err != nil {
		return err
	}

	printSuccess("Total conversations: %d", len(conversations))
	for i, c := range conversations {
		if i == 5 {
			break
		}
		fmt.Printf("  - %s [%s] - %s\n", c.ID, c.Status, c.StartedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printChanges(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/api/change-requests")
	if err != nil {
		return err
	}

	var changes []storage.ChangeRequest
	if err := decodeJSON(resp, &changes); err != nil {
		return err
	}

	printSuccess("Total change requests: %d", len(changes))
	for _, cr := range changes {
		fmt.Printf("  - %s: %s [%s]\n", cr.Number, cr.ShortDescription, cr.State)
	}
	return nil
}
