package intent

import "testing"

func TestDetectRules(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"create with change", "I want to create a change request", CreateChangeRequest},
		{"new ticket", "new ticket please", CreateChangeRequest},
		{"make a cr", "make a cr for the DB upgrade", CreateChangeRequest},
		{"check status", "check the status of my change", CheckStatus},
		{"lookup chg number", "lookup CHG0001234", CheckStatus},
		{"find request", "find my request", CheckStatus},
		{"update change", "update my change request", UpdateChangeRequest},
		{"modify ticket", "modify the ticket", UpdateChangeRequest},
		{"list all", "list everything", ListChanges},
		{"all of them", "all of them", ListChanges},
		{"help", "help", Help},
		{"what can you do", "What can you do?", Help},
		{"hello", "Hello there", Greeting},
		{"hey", "hey", Greeting},
		{"good morning", "Good morning!", Greeting},
		{"unrelated", "the weather is nice today", Unknown},
		{"empty", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.message, ""); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

// TestDetectPriorityOrder pins which rule wins when a message matches several.
func TestDetectPriorityOrder(t *testing.T) {
	// "create" beats "check" for a message containing both.
	if got := Detect("create and check a change", ""); got != CreateChangeRequest {
		t.Errorf("got %q, want %q", got, CreateChangeRequest)
	}
	// "check ... change" beats the update rule even though "change" matches both.
	if got := Detect("check the change request", ""); got != CheckStatus {
		t.Errorf("got %q, want %q", got, CheckStatus)
	}
}

// TestDetectGroupFallthrough verifies a first-group match without the second
// group falls through to later rules instead of short-circuiting to unknown.
func TestDetectGroupFallthrough(t *testing.T) {
	// "show" matches check_status's first group but there is no second-group
	// word, so the message falls through and matches list via "show all".
	if got := Detect("show all", ""); got != ListChanges {
		t.Errorf("Detect(show all) = %q, want %q", got, ListChanges)
	}
	// "create" alone (no change/ticket/request/cr) is not a create intent.
	if got := Detect("create a plan", ""); got != Unknown {
		t.Errorf("Detect(create a plan) = %q, want %q", got, Unknown)
	}
	// Keyword matching is substring-based, so "show my changes" lands on the
	// status rule ("show" + "change"), not the list rule.
	if got := Detect("show my changes", ""); got != CheckStatus {
		t.Errorf("Detect(show my changes) = %q, want %q", got, CheckStatus)
	}
}

// TestDetectSticky verifies an active intent absorbs mid-flow answers.
func TestDetectSticky(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{"priority digit", "3"},
		{"date answer", "2025-01-01"},
		{"free text", "upgrade the database server"},
		{"mentions help word", "helping the team with deploys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.message, CreateChangeRequest); got != CreateChangeRequest {
				t.Errorf("Detect(%q, active) = %q, want sticky %q", tt.message, got, CreateChangeRequest)
			}
		})
	}
}

// TestDetectSwitchKeywords verifies every switch keyword re-opens classification.
func TestDetectSwitchKeywords(t *testing.T) {
	for _, kw := range switchKeywords {
		if got := Detect(kw, CreateChangeRequest); got == CreateChangeRequest {
			t.Errorf("Detect(%q, active) stayed sticky, want reclassification", kw)
		}
	}

	// A switch keyword followed by a new request lands on the new intent.
	if got := Detect("cancel, I want to check the status of a change", CreateChangeRequest); got != CheckStatus {
		t.Errorf("got %q, want %q", got, CheckStatus)
	}
	// A bare "cancel" reclassifies to unknown.
	if got := Detect("cancel", CreateChangeRequest); got != Unknown {
		t.Errorf("Detect(cancel, active) = %q, want %q", got, Unknown)
	}
}

func TestDetectCaseInsensitive(t *testing.T) {
	if got := Detect("CREATE A CHANGE REQUEST", ""); got != CreateChangeRequest {
		t.Errorf("got %q, want %q", got, CreateChangeRequest)
	}
	if got := Detect("NEVERMIND", CreateChangeRequest); got != Unknown {
		t.Errorf("got %q, want %q", got, Unknown)
	}
}

func TestDescriptionTotal(t *testing.T) {
	labels := []string{CreateChangeRequest, CheckStatus, UpdateChangeRequest, ListChanges, Help, Greeting, Unknown}
	for _, l := range labels {
		if Description(l) == "" {
			t.Errorf("Description(%q) is empty", l)
		}
	}
	if Description("bogus") != "Unknown intent" {
		t.Errorf("Description(bogus) = %q", Description("bogus"))
	}
}
