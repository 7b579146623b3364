package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// SQLiteService persists round summaries and fronts reads with the same
// bounded cache the memory backend uses.
type SQLiteService struct {
	db    *sql.DB
	limit int

	mu    sync.Mutex
	cache *lru.Cache[string, []RoundSummary]
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS round_history (
    game_id TEXT NOT NULL,
    round INTEGER NOT NULL,
    summary_json TEXT NOT NULL,
    ended_at_ms INTEGER NOT NULL,
    PRIMARY KEY (game_id, round)
)`); err != nil {
		_ = db.Close()
		return nil, err
	}

	cache, err := lru.New[string, []RoundSummary](cachedGames)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteService{db: db, limit: defaultRecentLimit, cache: cache}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) RecordRound(sum RoundSummary) {
	s.mu.Lock()
	recent, _ := s.cache.Get(sum.GameID)
	recent = append([]RoundSummary{sum}, recent...)
	if len(recent) > s.limit {
		recent = recent[:s.limit]
	}
	s.cache.Add(sum.GameID, recent)
	s.mu.Unlock()

	raw, err := json.Marshal(sum)
	if err != nil {
		log.Printf("[History] marshal round summary failed: game=%s round=%d err=%v",
			sum.GameID, sum.Round, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO round_history (game_id, round, summary_json, ended_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (game_id, round) DO UPDATE SET
    summary_json = excluded.summary_json,
    ended_at_ms = excluded.ended_at_ms
`, sum.GameID, sum.Round, string(raw), sum.EndedAt.UTC().UnixMilli()); err != nil {
		log.Printf("[History] persist round failed: game=%s round=%d err=%v",
			sum.GameID, sum.Round, err)
	}
}

func (s *SQLiteService) Recent(gameID string, limit int) []RoundSummary {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	s.mu.Lock()
	recent, ok := s.cache.Get(gameID)
	s.mu.Unlock()
	if ok && len(recent) >= limit {
		out := make([]RoundSummary, limit)
		copy(out, recent[:limit])
		return out
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
SELECT summary_json
FROM round_history
WHERE game_id = ?
ORDER BY round DESC
LIMIT ?
`, gameID, limit)
	if err != nil {
		log.Printf("[History] recent query failed: game=%s err=%v", gameID, err)
		return nil
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return out
		}
		var sum RoundSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out
}
