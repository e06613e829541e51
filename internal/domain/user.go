package domain

import "time"

// User represents a reelview account together with its server-side watchlist.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Watchlist    []WatchlistEntry
	CreatedAt    time.Time
}

// Clone returns a deep copy so callers can mutate the watchlist freely.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	dup := *u
	dup.PasswordHash = append([]byte(nil), u.PasswordHash...)
	dup.Watchlist = append([]WatchlistEntry(nil), u.Watchlist...)
	return &dup
}
