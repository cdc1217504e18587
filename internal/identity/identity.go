// Package identity supplies the bearer token exchanged for storage credentials.
package identity

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustreak/bucketvis/internal/errs"
)

// Provider supplies an identity token on demand.
// Token fails with errs.ErrKindNotAuthenticated when no usable token exists.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same token.
type Static struct {
	token string
	now   func() time.Time
}

// NewStatic returns a Provider for a fixed token.
func NewStatic(token string) *Static {
	return &Static{token: token, now: time.Now}
}

func (s *Static) Token(_ context.Context) (string, error) {
	return check(s.token, s.now())
}

// File re-reads the token from disk on every call, so rotated tokens
// (e.g. projected service-account tokens) are picked up.
type File struct {
	Path string
	now  func() time.Time
}

// NewFile returns a Provider reading the token at path.
func NewFile(path string) *File {
	return &File{Path: path, now: time.Now}
}

func (f *File) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindNotAuthenticated, "failed to read identity token file", err)
	}
	return check(string(data), f.now())
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Var string
	now func() time.Time
}

// NewEnv returns a Provider reading the token from the variable name.
func NewEnv(name string) *Env {
	return &Env{Var: name, now: time.Now}
}

func (e *Env) Token(_ context.Context) (string, error) {
	return check(os.Getenv(e.Var), e.now())
}

// ExpiresAt returns the exp claim of a JWT token. ok is false for opaque
// tokens and JWTs without an exp claim. The signature is not verified:
// the storage backend does that during the exchange.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func check(raw string, now time.Time) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", errs.New(errs.ErrKindNotAuthenticated, "no identity token available")
	}
	if exp, ok := ExpiresAt(token); ok && !exp.After(now) {
		return "", errs.New(errs.ErrKindNotAuthenticated, "identity token expired at "+exp.UTC().Format(time.RFC3339))
	}
	return token, nil
}
