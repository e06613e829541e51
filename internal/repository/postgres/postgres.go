package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL. Each user row
// carries its watchlist as a JSONB document.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.WatchlistAppender = (*Repository)(nil)
	_ repository.Pinger            = (*Repository)(nil)
)

const userColumns = `id, name, email, password_hash, watchlist, created_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	watchlist, err := encodeWatchlist(user.Watchlist)
	if err != nil {
		return err
	}
	const query = `INSERT INTO users (id, name, email, password_hash, watchlist, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`
	_, err = r.pool.Exec(ctx, query, user.ID, user.Name, normalizeEmail(user.Email), user.PasswordHash, watchlist, user.CreatedAt)
	return classify(err)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, normalizeEmail(email)))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// SaveUser writes back the mutable fields of a user.
func (r *Repository) SaveUser(ctx context.Context, user *domain.User) error {
	watchlist, err := encodeWatchlist(user.Watchlist)
	if err != nil {
		return err
	}
	const query = `UPDATE users SET name = $2, watchlist = $3::jsonb WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ID, user.Name, watchlist)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddWatchlistEntry appends entry in a single statement unless the document
// already contains it. Concurrent callers serialise on the row lock and the
// loser re-evaluates the containment check against the updated row.
func (r *Repository) AddWatchlistEntry(ctx context.Context, userID string, entry domain.WatchlistEntry) (bool, error) {
	fragment, err := encodeWatchlist([]domain.WatchlistEntry{entry})
	if err != nil {
		return false, err
	}
	const update = `UPDATE users SET watchlist = watchlist || $2::jsonb
		WHERE id = $1 AND NOT (watchlist @> $2::jsonb)`
	tag, err := r.pool.Exec(ctx, update, userID, fragment)
	if err != nil {
		return false, classify(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	const exists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	var found bool
	if err := r.pool.QueryRow(ctx, exists, userID).Scan(&found); err != nil {
		return false, classify(err)
	}
	if !found {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u   domain.User
		raw []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &raw, &u.CreatedAt); err != nil {
		return nil, classify(err)
	}
	watchlist, err := decodeWatchlist(raw)
	if err != nil {
		return nil, err
	}
	u.Watchlist = watchlist
	return &u, nil
}

func encodeWatchlist(entries []domain.WatchlistEntry) (string, error) {
	if entries == nil {
		entries = []domain.WatchlistEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode watchlist: %w", err)
	}
	return string(payload), nil
}

func decodeWatchlist(raw []byte) ([]domain.WatchlistEntry, error) {
	entries := make([]domain.WatchlistEntry, 0)
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode watchlist: %w", repository.ErrStorageUnavailable, err)
	}
	return entries, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// classify maps driver errors onto repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicateEmail
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStorageUnavailable, err)
}
