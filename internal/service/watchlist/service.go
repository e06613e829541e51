// Package watchlist maintains the authoritative server-side watchlist of each
// user. It never merges with client-held copies.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
	"github.com/splax/reelview/internal/service/auth"
)

var (
	// ErrInvalidEntry is returned for entries that fail validation.
	ErrInvalidEntry = errors.New("invalid watchlist entry")
	// ErrUserNotFound means the session identity no longer resolves to a user.
	ErrUserNotFound = errors.New("user not found")
)

// Service handles watchlist reads and writes.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	locks  *userLocks
}

// New constructs a Service. When users also implements
// repository.WatchlistAppender, adds are delegated to its atomic operation;
// otherwise the fetch-check-append-save cycle runs under a per-user lock.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, logger: logger, locks: newUserLocks()}
}

// Add appends entry to the session user's watchlist unless it is already
// present. The boolean reports whether the list changed; a duplicate is not an
// error.
func (s Service) Add(ctx context.Context, session auth.Session, entry domain.WatchlistEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if session.UserID == "" {
		return false, auth.ErrUnauthenticated
	}

	var (
		added bool
		err   error
	)
	if appender, ok := s.users.(repository.WatchlistAppender); ok {
		added, err = appender.AddWatchlistEntry(ctx, session.UserID, entry)
	} else {
		added, err = s.addLocked(ctx, session.UserID, entry)
	}
	if err != nil {
		return false, s.storageError("add", session.UserID, err)
	}
	if added {
		s.logger.Info("watchlist entry added", "user_id", session.UserID, "item_id", entry.ItemID, "type", entry.Kind)
	} else {
		s.logger.Debug("watchlist entry already present", "user_id", session.UserID, "item_id", entry.ItemID, "type", entry.Kind)
	}
	return added, nil
}

func (s Service) addLocked(ctx context.Context, userID string, entry domain.WatchlistEntry) (bool, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	var added bool
	user.Watchlist, added = domain.AppendUnique(user.Watchlist, entry)
	if !added {
		return false, nil
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the session user's watchlist in storage order.
func (s Service) List(ctx context.Context, session auth.Session) ([]domain.WatchlistEntry, error) {
	if session.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, s.storageError("list", session.UserID, err)
	}
	if user.Watchlist == nil {
		return []domain.WatchlistEntry{}, nil
	}
	return user.Watchlist, nil
}

func (s Service) storageError(op, userID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errors.Join(ErrUserNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrStorageUnavailable):
		s.logger.Error("watchlist storage failure", "op", op, "user_id", userID, "error", err)
		return err
	default:
		s.logger.Error("watchlist storage failure", "op", op, "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", repository.ErrStorageUnavailable, err)
	}
}

// userLocks hands out one mutex per user id and drops it once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu      sync.Mutex
	waiters int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.waiters++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.waiters--
		if entry.waiters == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
