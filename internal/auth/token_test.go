// ABOUTME: Unit tests for bearer token sources and the JWT expiry pre-check
// ABOUTME: Tests static, file and env sources, valid, expired and malformed tokens

package auth

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestExpiryChecked_ValidToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})

	got, err := NewExpiryChecked(StaticToken(token), 0).Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got != token {
		t.Errorf("Token() = %q, want %q", got, token)
	}
}

func TestExpiryChecked_ExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()})

	_, err := NewExpiryChecked(StaticToken(token), 0).Token()
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Token() error = %v, want ErrExpiredToken", err)
	}
}

func TestExpiryChecked_Leeway(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(30 * time.Second).Unix()})

	_, err := NewExpiryChecked(StaticToken(token), time.Minute).Token()
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Token() error = %v, want ErrExpiredToken within leeway", err)
	}
}

func TestExpiryChecked_PassThrough(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "opaque", token: "cvn_abcdef123456"},
		{name: "jwt without exp", token: signToken(t, jwt.MapClaims{"sub": "user-1"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExpiryChecked(StaticToken(tt.token), 0).Token()
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if got != tt.token {
				t.Errorf("Token() = %q, want %q", got, tt.token)
			}
		})
	}
}

func TestExpiryChecked_MalformedJWT(t *testing.T) {
	_, err := NewExpiryChecked(StaticToken("header.payload.signature"), 0).Token()
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Token() error = %v, want ErrInvalidToken", err)
	}
}

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-token\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := FileToken{Path: path}.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got != "file-token" {
		t.Errorf("Token() = %q, want %q", got, "file-token")
	}

	missing, err := FileToken{Path: filepath.Join(t.TempDir(), "nope")}.Token()
	if err != nil || missing != "" {
		t.Errorf("missing file: Token() = %q, %v; want empty, nil", missing, err)
	}
}

func TestResolve_Priority(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	tokenFile := filepath.Join(dir, "custom-token")
	if err := os.WriteFile(tokenFile, []byte("from-file"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		env       string
		token     string
		tokenFile string
		want      string
	}{
		{name: "env wins", env: "from-env", token: "from-config", tokenFile: tokenFile, want: "from-env"},
		{name: "config token", token: "from-config", tokenFile: tokenFile, want: "from-config"},
		{name: "token file", tokenFile: tokenFile, want: "from-file"},
		{name: "default file missing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(TokenEnvVar, tt.env)
			got, err := Resolve(tt.token, tt.tokenFile).Token()
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Token() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetBearer(t *testing.T) {
	h := http.Header{}
	if err := SetBearer(h, StaticToken("abc")); err != nil {
		t.Fatalf("SetBearer() error = %v", err)
	}
	if got := h.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}

	empty := http.Header{}
	if err := SetBearer(empty, StaticToken("")); err != nil {
		t.Fatalf("SetBearer() error = %v", err)
	}
	if _, ok := empty["Authorization"]; ok {
		t.Error("expected no Authorization header for empty token")
	}
}
