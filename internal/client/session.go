// Package client holds the state of one reelview client: the signed-in user
// and a local shadow watchlist. The local list and the server list are kept
// apart; they only meet through an explicit Push.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/splax/reelview/internal/domain"
	apiclient "github.com/splax/reelview/pkg/api/client"
)

// Keys under which state is persisted.
const (
	KeyCurrentUser = "currentUser"
	KeyWatchlist   = "watchlist"
)

// ErrUnauthenticated is returned by operations that need a signed-in user.
var ErrUnauthenticated = errors.New("login required")

// API is the slice of the HTTP client the session uses.
type API interface {
	Signup(ctx context.Context, name, email, password string) (apiclient.SessionResponse, error)
	Login(ctx context.Context, email, password string) (apiclient.SessionResponse, error)
	ListWatchlist(ctx context.Context, token string) ([]domain.WatchlistEntry, error)
	AddToWatchlist(ctx context.Context, token string, entry domain.WatchlistEntry) error
	Details(ctx context.Context, kind domain.Kind, id int64) (domain.Details, error)
}

// CurrentUser is the persisted login.
type CurrentUser struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Session is the explicit client context. Build one with Load.
type Session struct {
	store  Store
	api    API
	logger *slog.Logger

	mu        sync.Mutex
	user      *CurrentUser
	watchlist []domain.WatchlistEntry
}

// Load restores state from store. Unreadable values are discarded with a
// warning so a corrupt file never blocks the client.
func Load(ctx context.Context, store Store, api API, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{store: store, api: api, logger: logger, watchlist: []domain.WatchlistEntry{}}

	var user CurrentUser
	found, err := s.read(ctx, KeyCurrentUser, &user)
	if err != nil {
		return nil, err
	}
	if found && strings.TrimSpace(user.Token) != "" {
		s.user = &user
	}

	var entries []domain.WatchlistEntry
	if _, err := s.read(ctx, KeyWatchlist, &entries); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Validate() != nil {
			continue
		}
		s.watchlist, _ = domain.AppendUnique(s.watchlist, entry)
	}
	return s, nil
}

func (s *Session) read(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn("discarding unreadable client state", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Session) write(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// CurrentUser reports the signed-in user, if any.
func (s *Session) CurrentUser() (CurrentUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return CurrentUser{}, false
	}
	return *s.user, true
}

// Signup creates an account and signs in as it.
func (s *Session) Signup(ctx context.Context, name, email, password string) (CurrentUser, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return CurrentUser{}, errors.New("email and password required")
	}
	resp, err := s.api.Signup(ctx, name, email, password)
	if err != nil {
		return CurrentUser{}, err
	}
	return s.setUser(ctx, CurrentUser{Name: resp.Name, Token: resp.Token})
}

// Login signs in with existing credentials.
func (s *Session) Login(ctx context.Context, email, password string) (CurrentUser, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return CurrentUser{}, errors.New("email and password required")
	}
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return CurrentUser{}, err
	}
	return s.setUser(ctx, CurrentUser{Name: resp.Name, Token: resp.Token})
}

func (s *Session) setUser(ctx context.Context, user CurrentUser) (CurrentUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, KeyCurrentUser, user); err != nil {
		return CurrentUser{}, err
	}
	s.user = &user
	return user, nil
}

// Logout forgets the signed-in user. The local watchlist is kept.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, KeyCurrentUser); err != nil {
		return fmt.Errorf("clear %s: %w", KeyCurrentUser, err)
	}
	s.user = nil
	return nil
}

// Local returns a copy of the local watchlist in insertion order.
func (s *Session) Local() []domain.WatchlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.WatchlistEntry{}, s.watchlist...)
}

// AddLocal records entry in the local watchlist. Without a signed-in user it
// returns ErrUnauthenticated and changes nothing. A duplicate reports
// added=false and no error.
func (s *Session) AddLocal(ctx context.Context, entry domain.WatchlistEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return false, ErrUnauthenticated
	}
	next, added := domain.AppendUnique(append([]domain.WatchlistEntry(nil), s.watchlist...), entry)
	if !added {
		return false, nil
	}
	if err := s.write(ctx, KeyWatchlist, next); err != nil {
		return false, err
	}
	s.watchlist = next
	return true, nil
}

// Item is one rendered watchlist row.
type Item struct {
	Entry       domain.WatchlistEntry
	Title       string
	PosterPath  string
	VoteAverage float64
}

// Render resolves display metadata for entries in order. Entries whose lookup
// fails or comes back empty are skipped.
func (s *Session) Render(ctx context.Context, entries []domain.WatchlistEntry) []Item {
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		details, err := s.api.Details(ctx, entry.Kind, entry.ItemID)
		if err != nil {
			s.logger.Debug("watchlist item lookup failed", "id", entry.ItemID, "type", entry.Kind, "error", err)
			continue
		}
		if details.Details == nil {
			continue
		}
		items = append(items, Item{
			Entry:       entry,
			Title:       details.Details.DisplayTitle(),
			PosterPath:  details.Details.PosterPath,
			VoteAverage: details.Details.VoteAverage,
		})
	}
	return items
}

func (s *Session) token() (string, error) {
	user, ok := s.CurrentUser()
	if !ok {
		return "", ErrUnauthenticated
	}
	return user.Token, nil
}

// ListRemote fetches the server watchlist. The local list is not touched.
func (s *Session) ListRemote(ctx context.Context) ([]domain.WatchlistEntry, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	return s.api.ListWatchlist(ctx, token)
}

// AddRemote stores entry on the server. The local list is not touched.
func (s *Session) AddRemote(ctx context.Context, entry domain.WatchlistEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	token, err := s.token()
	if err != nil {
		return err
	}
	return s.api.AddToWatchlist(ctx, token, entry)
}

// PushResult summarises an explicit upload of the local list.
type PushResult struct {
	Sent   int
	Failed []domain.WatchlistEntry
}

// Push uploads every local entry to the server. The server ignores entries it
// already has. It stops at the first authentication failure and otherwise
// reports per-entry failures in the result.
func (s *Session) Push(ctx context.Context) (PushResult, error) {
	token, err := s.token()
	if err != nil {
		return PushResult{}, err
	}
	var result PushResult
	for _, entry := range s.Local() {
		if err := s.api.AddToWatchlist(ctx, token, entry); err != nil {
			if status := apiclient.StatusOf(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
				return result, err
			}
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("push failed for entry", "id", entry.ItemID, "type", entry.Kind, "error", err)
			result.Failed = append(result.Failed, entry)
			continue
		}
		result.Sent++
	}
	return result, nil
}
