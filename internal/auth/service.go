package auth

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("unknown user")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// User is one live account. The balance is read by the account command
// and settled by session drivers, so it sits behind its own lock.
type User struct {
	Username     string
	PasswordHash []byte
	FullName     string

	mu      sync.Mutex
	balance int64
}

func NewUser(username string, passwordHash []byte, fullName string, balance int64) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     fullName,
		balance:      balance,
	}
}

func (u *User) Balance() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.balance
}

// Adjust applies a settlement delta. The balance never goes negative:
// stakes are validated against the balance before they are accepted.
func (u *User) Adjust(delta int64) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.balance += delta
	if u.balance < 0 {
		u.balance = 0
	}
	return u.balance
}

// Store is the user-store contract consumed by command handlers and the
// session driver.
type Store interface {
	// Lookup validates credentials and returns the live account.
	// A failed password check returns ErrInvalidCredentials.
	Lookup(username, password string) (*User, error)
	// Persist writes the account's mutable fields back to storage.
	Persist(u *User) error
	// Create registers a new account with a starting balance.
	Create(username, password, fullName string, balance int64) error
	Close() error
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}
