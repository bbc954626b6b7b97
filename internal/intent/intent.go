// Package intent maps free-text chat messages onto a fixed set of
// conversational intents using deterministic keyword rules.
package intent

import "strings"

// Intent labels. Detect always returns one of these.
const (
	CreateChangeRequest = "create_change_request"
	CheckStatus         = "check_status"
	UpdateChangeRequest = "update_change_request"
	ListChanges         = "list_changes"
	Help                = "help"
	Greeting            = "greeting"
	Unknown             = "unknown"
)

// switchKeywords signal the user wants to abandon the current flow.
var switchKeywords = []string{
	"cancel",
	"stop",
	"nevermind",
	"never mind",
	"forget it",
	"start over",
	"restart",
	"i want to",
	"instead",
}

// rule matches when the message contains a word from each non-empty group.
type rule struct {
	label  string
	first  []string
	second []string
}

// Rules are evaluated in priority order; the first match wins. A message that
// matches a rule's first group but not its second falls through to later
// rules rather than short-circuiting.
var rules = []rule{
	{CreateChangeRequest, []string{"create", "new", "make", "add", "start"}, []string{"change", "ticket", "request", "cr"}},
	{CheckStatus, []string{"status", "check", "show", "find", "lookup", "search"}, []string{"change", "ticket", "request", "chg"}},
	{UpdateChangeRequest, []string{"update", "modify", "edit", "change"}, []string{"change", "ticket", "request"}},
	{ListChanges, []string{"list", "all", "show all", "my changes"}, nil},
	{Help, []string{"help", "what can you do", "commands", "how to"}, nil},
	{Greeting, []string{"hello", "hi", "hey", "good morning", "good afternoon"}, nil},
}

// Detect classifies a message given the conversation's current intent (empty
// when none). While a flow is active the current intent is sticky: mid-flow
// answers such as a bare date or priority digit must not be reclassified, so
// only an explicit switch keyword re-opens classification.
func Detect(message, current string) string {
	if current != "" && !wantsSwitch(message) {
		return current
	}

	lower := strings.ToLower(message)
	for _, r := range rules {
		if !containsAny(lower, r.first) {
			continue
		}
		if r.second != nil && !containsAny(lower, r.second) {
			continue
		}
		return r.label
	}
	return Unknown
}

// wantsSwitch reports whether the message explicitly abandons the active flow.
func wantsSwitch(message string) bool {
	return containsAny(strings.ToLower(message), switchKeywords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Description returns a human-readable description of an intent label.
func Description(label string) string {
	switch label {
	case CreateChangeRequest:
		return "Create a new change request"
	case CheckStatus:
		return "Check the status of a change request"
	case UpdateChangeRequest:
		return "Update an existing change request"
	case ListChanges:
		return "List all change requests"
	case Help:
		return "Get help and see available commands"
	case Greeting:
		return "Greeting"
	default:
		return "Unknown intent"
	}
}
