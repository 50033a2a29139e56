package models

import "testing"

func TestDisplayNamePrivateChat(t *testing.T) {
	group := Group{
		GroupType: GroupTypePrivate,
		Name:      "alice-bob",
		Members: []Member{
			{ID: 1, Name: "Alice"},
			{ID: 2, Name: "Bob"},
		},
	}

	if got := group.DisplayName(1); got != "Bob" {
		t.Fatalf("DisplayName for user 1 = %q, want Bob", got)
	}
	if got := group.DisplayName(2); got != "Alice" {
		t.Fatalf("DisplayName for user 2 = %q, want Alice", got)
	}
}

func TestDisplayNameGroupChat(t *testing.T) {
	group := Group{
		GroupType: GroupTypeGroup,
		Name:      "team",
		Members:   []Member{{ID: 1, Name: "Alice"}},
	}

	if got := group.DisplayName(1); got != "team" {
		t.Fatalf("DisplayName = %q, want team", got)
	}
}

func TestDisplayNamePrivateChatFallback(t *testing.T) {
	// A degenerate private chat with only the caller listed falls back to
	// the stored name rather than returning empty.
	group := Group{
		GroupType: GroupTypePrivate,
		Name:      "orphaned",
		Members:   []Member{{ID: 1, Name: "Alice"}},
	}

	if got := group.DisplayName(1); got != "orphaned" {
		t.Fatalf("DisplayName = %q, want orphaned", got)
	}
}
