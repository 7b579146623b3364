package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// PostgresStore is the shared-database user backend. Schema management
// is external; the store refuses to start against an uninitialized
// database rather than migrate on the fly.
type PostgresStore struct {
	db *sql.DB

	mu   sync.Mutex
	live map[string]*User
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	var schemaReady bool
	if err := db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM information_schema.tables
    WHERE table_schema = 'public'
      AND table_name = 'users'
)`).Scan(&schemaReady); err != nil {
		_ = db.Close()
		return nil, err
	}
	if !schemaReady {
		_ = db.Close()
		return nil, fmt.Errorf("user schema not initialized: missing table users")
	}

	return &PostgresStore{db: db, live: make(map[string]*User)}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Create(username, password, fullName string, balance int64) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO users (username, password_hash, full_name, balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
`, normalizeUsername(username), string(hash), fullName, balance)
	if err != nil {
		if isPostgresUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Lookup(username, password string) (*User, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var hash, fullName string
	var balance int64
	err := s.db.QueryRowContext(ctx, `
SELECT password_hash, full_name, balance
FROM users
WHERE username = $1
`, normalized).Scan(&hash, &fullName, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.live[normalized]; ok {
		return u, nil
	}
	u := NewUser(normalized, []byte(hash), fullName, balance)
	s.live[normalized] = u
	return u, nil
}

func (s *PostgresStore) Persist(u *User) error {
	if u == nil {
		return ErrUnknownUser
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET balance = $1,
    full_name = $2,
    updated_at = now()
WHERE username = $3
`, u.Balance(), u.FullName, u.Username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnknownUser
	}
	return nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
