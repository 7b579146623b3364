package games

import (
	"errors"
	"sort"
	"sync"
)

var ErrNoSuchGame = errors.New("no such game")

// Metadata is the static description of one table, loaded at startup
// and treated as read-only routing data afterwards.
type Metadata struct {
	ID         string
	NumDecks   int
	MinBet     int64
	MaxBet     int64
	MinPlayers int
	MaxPlayers int
	Rules      []string
}

// Store is the game-metadata contract consumed by command handlers and
// the HTTP API.
type Store interface {
	ListAll() ([]Metadata, error)
	Lookup(id string) (*Metadata, error)
	Close() error
}

// MemoryStore serves a fixed metadata set from process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]Metadata
}

func NewMemoryStore(games ...Metadata) *MemoryStore {
	s := &MemoryStore{games: make(map[string]Metadata, len(games))}
	for _, g := range games {
		s.games[g.ID] = g
	}
	return s
}

func (s *MemoryStore) ListAll() ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Metadata, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Lookup(id string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrNoSuchGame
	}
	out := g
	return &out, nil
}

func (s *MemoryStore) Close() error { return nil }

// DefaultTables is the seed set used when no metadata has been
// provisioned.
func DefaultTables() []Metadata {
	return []Metadata{
		{
			ID:         "downtown",
			NumDecks:   2,
			MinBet:     25,
			MaxBet:     1000,
			MinPlayers: 1,
			MaxPlayers: 5,
			Rules:      []string{"dealer stands on all 17s", "blackjack pays even money"},
		},
		{
			ID:         "boardwalk",
			NumDecks:   6,
			MinBet:     100,
			MaxBet:     5000,
			MinPlayers: 1,
			MaxPlayers: 7,
			Rules:      []string{"dealer stands on all 17s", "six-deck shoe"},
		},
		{
			ID:         "penny",
			NumDecks:   1,
			MinBet:     1,
			MaxBet:     50,
			MinPlayers: 1,
			MaxPlayers: 4,
			Rules:      []string{"single deck", "friendly stakes"},
		},
	}
}
