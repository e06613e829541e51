package repository

import (
	"context"

	"github.com/splax/reelview/internal/domain"
)

// UserRepository persists users and their server-side watchlists.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	SaveUser(ctx context.Context, user *domain.User) error
}

// WatchlistAppender performs an atomic add-if-absent on a user's watchlist.
// Stores that implement it let callers skip the read-modify-write cycle.
type WatchlistAppender interface {
	AddWatchlistEntry(ctx context.Context, userID string, entry domain.WatchlistEntry) (bool, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}
