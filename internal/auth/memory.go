package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemoryStore keeps accounts in process memory for single-binary
// deployment and tests. It hands out one canonical *User per account so
// every connection of the same player settles against the same balance.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User // normalized username -> account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Create(username, password, fullName string, balance int64) error {
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

	normalized := normalizeUsername(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[normalized]; exists {
		return ErrUsernameTaken
	}
	s.users[normalized] = NewUser(normalized, hash, fullName, balance)
	return nil
}

func (s *MemoryStore) Lookup(username, password string) (*User, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	u, exists := s.users[normalized]
	s.mu.Unlock()
	if !exists {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Persist is a no-op for the memory backend; the live *User is the
// storage.
func (s *MemoryStore) Persist(u *User) error {
	if u == nil {
		return ErrUnknownUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; !exists {
		return ErrUnknownUser
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
