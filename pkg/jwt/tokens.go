package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "reelview"

var (
	// ErrInvalid is returned for any token that does not verify under the current secret.
	ErrInvalid = errors.New("jwt: invalid token")
	// ErrNoSecret is returned when signing is attempted without a secret.
	ErrNoSecret = errors.New("jwt: signing secret not configured")
)

// Claims defines JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed JWT for userID. A ttl of zero produces a token
// without an expiry claim that stays valid until the secret rotates.
func GenerateToken(userID, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("jwt: empty user id")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwtlib.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token. Every failure, including a
// missing secret, is reported as ErrInvalid wrapping the cause.
func Parse(token string, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.Join(ErrInvalid, ErrNoSecret)
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, errors.Join(ErrInvalid, jwtlib.ErrTokenInvalidClaims)
	}
	return claims, nil
}
