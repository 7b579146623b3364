package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blackjack-lite/internal/games"
	"blackjack-lite/internal/history"
	"blackjack-lite/internal/session"
)

// Server is the read-only ops surface: game metadata, live session
// snapshots, and round history. Game play itself never goes over HTTP.
type Server struct {
	games    games.Store
	sessions *session.Registry
	hist     history.Service
}

func New(g games.Store, sessions *session.Registry, hist history.Service) *Server {
	return &Server{games: g, sessions: sessions, hist: hist}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/games", s.handleGames)
	r.Get("/api/games/{id}/history", s.handleHistory)
	r.Get("/api/sessions", s.handleSessions)
	return r
}

func (s *Server) handleGames(w http.ResponseWriter, _ *http.Request) {
	list, err := s.games.ListAll()
	if err != nil {
		log.Printf("[HTTP] list games: %v", err)
		http.Error(w, "game list unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.games.Lookup(id); err != nil {
		if errors.Is(err, games.ErrNoSuchGame) {
			http.Error(w, "no such game", http.StatusNotFound)
			return
		}
		log.Printf("[HTTP] lookup %s: %v", id, err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rounds := s.hist.Recent(id, limit)
	if rounds == nil {
		rounds = []history.RoundSummary{}
	}
	writeJSON(w, rounds)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	snaps := s.sessions.Snapshots()
	if snaps == nil {
		snaps = []session.Snapshot{}
	}
	writeJSON(w, snaps)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}
