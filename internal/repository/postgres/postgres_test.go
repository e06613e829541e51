package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
)

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if err := classify(pgx.ErrNoRows); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"}
	if err := classify(fmt.Errorf("insert: %w", dup)); !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	cause := errors.New("dial tcp: connection refused")
	err := classify(cause)
	if !errors.Is(err, repository.ErrStorageUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped ErrStorageUnavailable, got %v", err)
	}
}

func TestWatchlistCodec(t *testing.T) {
	encoded, err := encodeWatchlist(nil)
	if err != nil || encoded != "[]" {
		t.Fatalf("expected empty array, got %q %v", encoded, err)
	}
	entries, err := decodeWatchlist([]byte(`[{"id":27205,"type":"movie"},{"id":1399,"type":"tv"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[1].Kind != domain.KindShow {
		t.Fatalf("unexpected entries %v", entries)
	}
	if _, err := decodeWatchlist([]byte(`{`)); !errors.Is(err, repository.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

// The remaining tests run against a live database when REELVIEW_TEST_DATABASE_URL
// points at a migrated schema.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("REELVIEW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REELVIEW_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func newTestUser() *domain.User {
	id := uuid.NewString()
	return &domain.User{
		ID:           id,
		Name:         "tester",
		Email:        id + "@example.com",
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestRepositoryUserLifecycle(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	user := newTestUser()
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.CreateUser(ctx, &domain.User{ID: uuid.NewString(), Email: user.Email, PasswordHash: []byte("x"), CreatedAt: time.Now()}); !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	got, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != user.ID || len(got.Watchlist) != 0 {
		t.Fatalf("unexpected user %+v", got)
	}
	got.Watchlist = []domain.WatchlistEntry{{ItemID: 27205, Kind: domain.KindMovie}}
	if err := repo.SaveUser(ctx, got); err != nil {
		t.Fatalf("save user: %v", err)
	}
	again, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(again.Watchlist) != 1 || again.Watchlist[0].ItemID != 27205 {
		t.Fatalf("unexpected watchlist %v", again.Watchlist)
	}
	if _, err := repo.GetUserByID(ctx, uuid.NewString()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryAddWatchlistEntryConcurrent(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	user := newTestUser()
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	entry := domain.WatchlistEntry{ItemID: 550, Kind: domain.KindMovie}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AddWatchlistEntry(ctx, user.ID, entry); err != nil {
				t.Errorf("add entry: %v", err)
			}
		}()
	}
	wg.Wait()
	got, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(got.Watchlist) != 1 {
		t.Fatalf("expected one entry, got %v", got.Watchlist)
	}
	if _, err := repo.AddWatchlistEntry(ctx, uuid.NewString(), entry); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
