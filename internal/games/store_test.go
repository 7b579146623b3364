package games

import (
	"errors"
	"testing"
)

func TestMemoryStoreListAndLookup(t *testing.T) {
	s := NewMemoryStore(DefaultTables()...)

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll err: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 seeded tables, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("ListAll not sorted: %q before %q", all[i-1].ID, all[i].ID)
		}
	}

	g, err := s.Lookup("downtown")
	if err != nil {
		t.Fatalf("Lookup err: %v", err)
	}
	if g.MinBet != 25 || g.MaxBet != 1000 {
		t.Fatalf("downtown bet range = [%d,%d]", g.MinBet, g.MaxBet)
	}
	if len(g.Rules) == 0 {
		t.Fatalf("expected rules on seeded table")
	}

	if _, err := s.Lookup("no-such-table"); !errors.Is(err, ErrNoSuchGame) {
		t.Fatalf("expected ErrNoSuchGame, got %v", err)
	}
}

func TestSQLiteStoreSeedsAndRoundTrips(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open err: %v", err)
	}
	defer s.Close()

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll err: %v", err)
	}
	if len(all) != len(DefaultTables()) {
		t.Fatalf("expected %d seeded tables, got %d", len(DefaultTables()), len(all))
	}

	g, err := s.Lookup("boardwalk")
	if err != nil {
		t.Fatalf("Lookup err: %v", err)
	}
	if g.NumDecks != 6 {
		t.Fatalf("boardwalk decks = %d, want 6", g.NumDecks)
	}
	if len(g.Rules) != 2 {
		t.Fatalf("boardwalk rules = %v", g.Rules)
	}

	if _, err := s.Lookup("no-such-table"); !errors.Is(err, ErrNoSuchGame) {
		t.Fatalf("expected ErrNoSuchGame, got %v", err)
	}
}
