package history

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
)

const (
	defaultRecentLimit = 20
	cachedGames        = 64
)

// Round result labels, as they appear on the wire and in records.
const (
	ResultWin     = "WIN"
	ResultLose    = "LOSE"
	ResultTie     = "TIE"
	ResultForfeit = "FORFEIT"
)

// PlayerOutcome is one player's result within a finished round.
type PlayerOutcome struct {
	Username string `json:"username"`
	Bet      int64  `json:"bet"`
	Result   string `json:"result"`
	Delta    int64  `json:"delta"`
}

// RoundSummary is the persisted record of one finished round.
type RoundSummary struct {
	GameID      string          `json:"game_id"`
	Round       int             `json:"round"`
	DealerHand  string          `json:"dealer_hand"`
	DealerTotal int             `json:"dealer_total"`
	Outcomes    []PlayerOutcome `json:"outcomes"`
	EndedAt     time.Time       `json:"ended_at"`
}

// Service records finished rounds and serves the recent ones. Reads hit
// an in-process LRU first; the sqlite backend additionally persists
// every record.
type Service interface {
	RecordRound(sum RoundSummary)
	Recent(gameID string, limit int) []RoundSummary
	Close() error
}

// MemoryService keeps only the bounded per-game cache.
type MemoryService struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []RoundSummary]
	limit int
}

func NewMemoryService() *MemoryService {
	cache, err := lru.New[string, []RoundSummary](cachedGames)
	if err != nil {
		panic(err)
	}
	return &MemoryService{cache: cache, limit: defaultRecentLimit}
}

func (s *MemoryService) RecordRound(sum RoundSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent, _ := s.cache.Get(sum.GameID)
	recent = append([]RoundSummary{sum}, recent...)
	if len(recent) > s.limit {
		recent = recent[:s.limit]
	}
	s.cache.Add(sum.GameID, recent)
}

func (s *MemoryService) Recent(gameID string, limit int) []RoundSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent, _ := s.cache.Get(gameID)
	if len(recent) == 0 {
		return nil
	}
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	out := make([]RoundSummary, len(recent))
	copy(out, recent)
	return out
}

func (s *MemoryService) Close() error { return nil }

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("HISTORY_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "local":
		return ModeSQLite
	default:
		return raw
	}
}

func sqlitePathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("HISTORY_SQLITE_PATH")); v != "" {
		return v
	}
	return "blackjack_history.db"
}

// NewServiceFromEnv selects the history backend via HISTORY_MODE.
func NewServiceFromEnv() (Service, string, error) {
	mode := modeFromEnv()

	switch mode {
	case ModeMemory:
		return NewMemoryService(), mode, nil
	case ModeSQLite:
		svc, err := NewSQLiteService(sqlitePathFromEnv())
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid HISTORY_MODE %q (supported: %s, %s)",
			mode, ModeMemory, ModeSQLite)
	}
}
