// ABOUTME: Bearer token sources for authenticating requests to the compose server
// ABOUTME: JWT tokens are checked for expiry locally so a stale token fails before any request

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenEnvVar overrides every configured token source.
const TokenEnvVar = "COVEN_TOKEN"

// TokenSource yields the bearer token for the next request. An empty token
// means requests go out unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() (string, error) { return string(s), nil }

// FileToken reads the token from a file on every call, so a token
// refreshed on disk is picked up without restarting.
type FileToken struct {
	Path string
}

// Token implements TokenSource. A missing file yields no token.
func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/coven/token, falling back to ~/.config.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "token")
}

// Resolve picks the token source. Priority: COVEN_TOKEN env var > token >
// tokenFile > the default token file.
func Resolve(token, tokenFile string) TokenSource {
	if env := os.Getenv(TokenEnvVar); env != "" {
		return StaticToken(env)
	}
	if token != "" {
		return StaticToken(token)
	}
	if tokenFile != "" {
		return FileToken{Path: tokenFile}
	}
	if path := DefaultTokenPath(); path != "" {
		return FileToken{Path: path}
	}
	return StaticToken("")
}

// ExpiryChecked wraps a source and rejects JWTs whose exp claim has passed.
// Tokens that are not JWTs are passed through unchanged.
type ExpiryChecked struct {
	Source TokenSource
	// Leeway treats tokens expiring within this window as already expired.
	Leeway time.Duration
	now    func() time.Time
}

// NewExpiryChecked wraps src with an expiry pre-check.
func NewExpiryChecked(src TokenSource, leeway time.Duration) *ExpiryChecked {
	return &ExpiryChecked{Source: src, Leeway: leeway, now: time.Now}
}

// Token implements TokenSource.
func (c *ExpiryChecked) Token() (string, error) {
	token, err := c.Source.Token()
	if err != nil || token == "" {
		return token, err
	}

	exp, ok, err := Expiry(token)
	if err != nil {
		return "", err
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if ok && !now().Add(c.Leeway).Before(exp) {
		return "", fmt.Errorf("%w at %s", ErrExpiredToken, exp.Format(time.RFC3339))
	}
	return token, nil
}

// Expiry returns the exp claim of a JWT without verifying its signature;
// verification is the server's job. ok is false for opaque tokens and JWTs
// without exp.
func Expiry(token string) (exp time.Time, ok bool, err error) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	date, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if date == nil {
		return time.Time{}, false, nil
	}
	return date.Time, true, nil
}

// SetBearer adds an Authorization header from src when it yields a token.
func SetBearer(h http.Header, src TokenSource) error {
	if src == nil {
		return nil
	}
	token, err := src.Token()
	if err != nil {
		return err
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return nil
}
