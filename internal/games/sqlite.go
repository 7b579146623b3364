package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore loads table metadata from a local sqlite database,
// seeding the default tables when the database is empty.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
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
		`PRAGMA foreign_keys = ON;`,
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
	if err := ensureSQLiteGameSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.seedIfEmpty(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ListAll() ([]Metadata, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT id, num_decks, min_bet, max_bet, min_players, max_players
FROM games
ORDER BY id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var g Metadata
		if err := rows.Scan(&g.ID, &g.NumDecks, &g.MinBet, &g.MaxBet, &g.MinPlayers, &g.MaxPlayers); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		rules, err := s.rulesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Rules = rules
	}
	return out, nil
}

func (s *SQLiteStore) Lookup(id string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g Metadata
	err := s.db.QueryRowContext(ctx, `
SELECT id, num_decks, min_bet, max_bet, min_players, max_players
FROM games
WHERE id = ?
`, id).Scan(&g.ID, &g.NumDecks, &g.MinBet, &g.MaxBet, &g.MinPlayers, &g.MaxPlayers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSuchGame
		}
		return nil, err
	}
	rules, err := s.rulesFor(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	g.Rules = rules
	return &g, nil
}

func (s *SQLiteStore) rulesFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT rule
FROM game_rules
WHERE game_id = ?
ORDER BY position
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []string
	for rows.Next() {
		var rule string
		if err := rows.Scan(&rule); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *SQLiteStore) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, g := range DefaultTables() {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO games (id, num_decks, min_bet, max_bet, min_players, max_players)
VALUES (?, ?, ?, ?, ?, ?)
`, g.ID, g.NumDecks, g.MinBet, g.MaxBet, g.MinPlayers, g.MaxPlayers); err != nil {
			return err
		}
		for i, rule := range g.Rules {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO game_rules (game_id, position, rule)
VALUES (?, ?, ?)
`, g.ID, i, rule); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func ensureSQLiteGameSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS games (
    id TEXT PRIMARY KEY,
    num_decks INTEGER NOT NULL,
    min_bet INTEGER NOT NULL,
    max_bet INTEGER NOT NULL,
    min_players INTEGER NOT NULL,
    max_players INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS game_rules (
    game_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    rule TEXT NOT NULL,
    PRIMARY KEY (game_id, position),
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
