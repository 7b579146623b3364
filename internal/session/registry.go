package session

import (
	"errors"
	"sync"

	"blackjack-lite/blackjack"
	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/games"
	"blackjack-lite/internal/history"
)

// Registry owns the live sessions, one per game id, created on first
// join and torn down by the driver once the last member leaves.
type Registry struct {
	users auth.Store
	hist  history.Service
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(users auth.Store, hist history.Service, cfg Config) *Registry {
	return &Registry{
		users:    users,
		hist:     hist,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Join places a user at the table for meta, creating the session and
// starting its driver when none exists yet. A session caught mid-close
// is replaced.
func (r *Registry) Join(meta games.Metadata, user *auth.User, msgr Messenger) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[meta.ID]; ok {
		err := s.Join(user, msgr)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		delete(r.sessions, meta.ID)
	}

	s := New(meta, blackjack.NewShoe(meta.NumDecks, nil), r.users, r.hist, r.cfg, r.remove)
	if err := s.Join(user, msgr); err != nil {
		return nil, err
	}
	r.sessions[meta.ID] = s
	s.Start()
	return s, nil
}

// Lookup returns the live session for a game id, if any.
func (r *Registry) Lookup(gameID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	return s, ok
}

// Snapshots returns a status view of every live session, for the ops
// surface.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	return out
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.Meta.ID] == s {
		delete(r.sessions, s.Meta.ID)
	}
}
