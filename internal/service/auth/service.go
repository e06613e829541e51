package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/repository"
	"github.com/splax/reelview/pkg/config"
	"github.com/splax/reelview/pkg/crypto"
	jwtpkg "github.com/splax/reelview/pkg/jwt"
)

var (
	// ErrMissingFields is returned when email or password is blank.
	ErrMissingFields = errors.New("email and password required")
	// ErrInvalidPassword is returned when a new password cannot be hashed.
	ErrInvalidPassword = errors.New("password must be at most 72 bytes")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated means no credential was presented.
	ErrUnauthenticated = errors.New("no token")
	// ErrForbidden means a credential was presented but did not verify.
	ErrForbidden = errors.New("invalid token")
)

// Session is the verified identity bound to a bearer token.
type Session struct {
	UserID string
}

// Result is returned by signup and login.
type Result struct {
	User  *domain.User
	Token string
}

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	secret string
	ttl    time.Duration
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, logger: logger, secret: cfg.JWTSecret, ttl: cfg.SessionTTL}
}

// Signup registers a new user and issues a session token.
func (s Service) Signup(ctx context.Context, name, email, password string) (Result, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Result{}, ErrMissingFields
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName(email)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		if errors.Is(err, crypto.ErrTooLong) {
			return Result{}, ErrInvalidPassword
		}
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Watchlist:    []domain.WatchlistEntry{},
		CreatedAt:    time.Now().UTC(),
	}
	// The token is signed before the user is stored so a signing failure
	// leaves no account behind.
	token, err := s.Issue(user.ID)
	if err != nil {
		s.logger.Error("issue token failed", "error", err)
		return Result{}, err
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			s.logger.Error("create user failed", "error", err)
		}
		return Result{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return Result{User: user, Token: token}, nil
}

// Login authenticates a user and returns a session token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s Service) Login(ctx context.Context, email, password string) (Result, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Result{}, ErrMissingFields
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrInvalidCredentials
		}
		s.logger.Error("lookup user failed", "error", err)
		return Result{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Warn("login rejected", "user_id", user.ID)
		return Result{}, ErrInvalidCredentials
	}
	token, err := s.Issue(user.ID)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return Result{User: user, Token: token}, nil
}

// Issue signs a token for userID under the process secret.
func (s Service) Issue(userID string) (string, error) {
	token, err := jwtpkg.GenerateToken(userID, s.secret, s.ttl)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Verify checks a bearer token. A blank token is ErrUnauthenticated; any
// verification failure, including a missing secret, is ErrForbidden.
func (s Service) Verify(token string) (Session, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Session{}, ErrUnauthenticated
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return Session{UserID: claims.UserID}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func defaultName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
