package auth

import (
	"errors"
	"testing"
)

func TestCreateAndLookup(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Create("alice_01", "secret12", "Alice Example", 2000); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	u, err := s.Lookup("Alice_01", "secret12")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if u.Username != "alice_01" {
		t.Fatalf("username = %q", u.Username)
	}
	if u.Balance() != 2000 {
		t.Fatalf("balance = %d, want 2000", u.Balance())
	}
}

func TestLookupRejectsWrongPassword(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("alice_01", "secret12", "", 100); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.Lookup("alice_01", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Lookup("nobody", "secret12"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("alice_01", "secret12", "", 100); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Create("Alice_01", "secret12", "", 100); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLookupReturnsCanonicalUser(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create("alice_01", "secret12", "", 100); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	u1, err := s.Lookup("alice_01", "secret12")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	u2, err := s.Lookup("alice_01", "secret12")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if u1 != u2 {
		t.Fatalf("expected the same live account instance per username")
	}
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	u := NewUser("alice", nil, "", 50)
	if got := u.Adjust(-80); got != 0 {
		t.Fatalf("balance after over-debit = %d, want 0", got)
	}
	if got := u.Adjust(30); got != 30 {
		t.Fatalf("balance = %d, want 30", got)
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"alice", "a_b.c-d", "x99"} {
		if err := validateUsername(ok); err != nil {
			t.Fatalf("validateUsername(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ab", ".dot", "has space", "wäy"} {
		if err := validateUsername(bad); err == nil {
			t.Fatalf("validateUsername(%q) expected error", bad)
		}
	}
}
