package classifier

import (
	"testing"

	"failguard/internal/domain"
)

func testRules() []domain.FilterRule {
	return []domain.FilterRule{
		{Name: "broken", Enabled: true, Pattern: `failed (?P<ip>[0-9.]+`},
		{Name: "no-group", Enabled: true, Pattern: `failed login from [0-9.]+`},
		{Name: "disabled", Enabled: false, Pattern: `failed login from (?P<ip>\S+)`},
		{Name: "login", Enabled: true, Pattern: `failed login from (?P<ip>\S+)`},
		{Name: "client", Enabled: true, Pattern: `rejected \[client (?P<addr>\S+)\]`, AddressGroup: "addr"},
		{Name: "catch-all", Enabled: true, Pattern: `(?P<ip>\d+\.\d+\.\d+\.\d+)`},
	}
}

func TestNewSkipsInvalidAndDisabledRules(t *testing.T) {
	c := New(testRules())

	got := c.Rules()
	want := []string{"login", "client", "catch-all"}
	if len(got) != len(want) {
		t.Fatalf("Rules() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rules()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	c := New(testRules())

	match, ok := c.Classify("2024-03-01 FAILED LOGIN FROM 10.0.0.5 user=root")
	if !ok {
		t.Fatal("expected match")
	}
	if match.Address != "10.0.0.5" || match.Rule != "login" {
		t.Fatalf("Classify = %+v, want 10.0.0.5 via login", match)
	}
}

func TestClassifyCustomGroup(t *testing.T) {
	c := New(testRules())

	match, ok := c.Classify("rejected [client 198.51.100.4]")
	if !ok || match.Rule != "client" || match.Address != "198.51.100.4" {
		t.Fatalf("Classify = %+v, %v; want 198.51.100.4 via client", match, ok)
	}
}

func TestClassifyRejectsInvalidOctets(t *testing.T) {
	c := New([]domain.FilterRule{
		{Name: "login", Enabled: true, Pattern: `failed login from (?P<ip>\S+)`},
	})

	if match, ok := c.Classify("failed login from 999.1.1.1"); ok {
		t.Fatalf("Classify = %+v, want no match for octet 999", match)
	}
}

func TestClassifyFallsThroughOnInvalidAddress(t *testing.T) {
	c := New(testRules())

	match, ok := c.Classify("failed login from host-7 relayed by 203.0.113.9")
	if !ok {
		t.Fatal("expected a later rule to match")
	}
	if match.Rule != "catch-all" || match.Address != "203.0.113.9" {
		t.Fatalf("Classify = %+v, want 203.0.113.9 via catch-all", match)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := New(testRules())

	if _, ok := c.Classify("session opened for user root"); ok {
		t.Fatal("unexpected match")
	}
	if _, ok := c.Classify(""); ok {
		t.Fatal("unexpected match for empty line")
	}
}
