package history

import (
	"testing"
	"time"
)

func summaryFor(game string, round int) RoundSummary {
	return RoundSummary{
		GameID:      game,
		Round:       round,
		DealerHand:  "KS 7D",
		DealerTotal: 17,
		Outcomes: []PlayerOutcome{
			{Username: "alice", Bet: 50, Result: "WIN", Delta: 50},
		},
		EndedAt: time.Unix(1700000000+int64(round), 0),
	}
}

func TestMemoryServiceNewestFirstAndBounded(t *testing.T) {
	s := NewMemoryService()
	for round := 1; round <= defaultRecentLimit+5; round++ {
		s.RecordRound(summaryFor("downtown", round))
	}

	recent := s.Recent("downtown", 0)
	if len(recent) != defaultRecentLimit {
		t.Fatalf("recent size = %d, want %d", len(recent), defaultRecentLimit)
	}
	if recent[0].Round != defaultRecentLimit+5 {
		t.Fatalf("newest round = %d, want %d", recent[0].Round, defaultRecentLimit+5)
	}

	limited := s.Recent("downtown", 3)
	if len(limited) != 3 {
		t.Fatalf("limited size = %d, want 3", len(limited))
	}
	if s.Recent("other", 5) != nil {
		t.Fatalf("unknown game should have no history")
	}
}

func TestSQLiteServiceRoundTrip(t *testing.T) {
	s, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("open err: %v", err)
	}
	defer s.Close()

	for round := 1; round <= 4; round++ {
		s.RecordRound(summaryFor("downtown", round))
	}

	recent := s.Recent("downtown", 2)
	if len(recent) != 2 {
		t.Fatalf("recent size = %d, want 2", len(recent))
	}
	if recent[0].Round != 4 || recent[1].Round != 3 {
		t.Fatalf("unexpected order: %d, %d", recent[0].Round, recent[1].Round)
	}
	if recent[0].Outcomes[0].Username != "alice" {
		t.Fatalf("outcome lost in round trip: %+v", recent[0].Outcomes)
	}
}
