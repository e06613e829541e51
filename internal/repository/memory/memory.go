// Package memory provides an in-process implementation of the repository
// interfaces for tests and single-node development runs.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
)

// Store keeps users in a mutex-guarded map.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

var (
	_ repository.UserRepository    = (*Store)(nil)
	_ repository.WatchlistAppender = (*Store)(nil)
	_ repository.Pinger            = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a user.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return repository.ErrDuplicateEmail
	}
	s.byID[user.ID] = user.Clone()
	s.byEmail[key] = user.ID
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user.Clone(), nil
}

// SaveUser replaces the stored name and watchlist of an existing user.
func (s *Store) SaveUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = user.Name
	existing.Watchlist = append([]domain.WatchlistEntry(nil), user.Watchlist...)
	return nil
}

// AddWatchlistEntry appends entry if the user does not already track it.
func (s *Store) AddWatchlistEntry(_ context.Context, userID string, entry domain.WatchlistEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[userID]
	if !ok {
		return false, repository.ErrNotFound
	}
	var added bool
	existing.Watchlist, added = domain.AppendUnique(existing.Watchlist, entry)
	return added, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
