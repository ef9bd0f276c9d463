// Package session carries the authenticated staff identity through a request.
package session

import (
	"context"
	"time"

	"lunexops/internal/apperr"
	"lunexops/pkg/rbac"
)

type Session struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether s names someone and has not expired at now.
func (s Session) Valid(now time.Time) bool {
	return s.Email != "" && now.Before(s.ExpiresAt)
}

// Actor is the identity recorded in audit rows.
func (s Session) Actor() string {
	return s.Email
}

type contextKey struct{}

func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Require returns the session in ctx if it is valid at now and its role holds
// permission.
func Require(ctx context.Context, permission string, now time.Time) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok || s.Email == "" {
		return Session{}, apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	if !s.Valid(now) {
		return Session{}, apperr.New(apperr.CodeSessionExpired, "session expired")
	}
	if err := rbac.CheckPermission(s.Role, permission); err != nil {
		return Session{}, apperr.Forbidden(permission)
	}
	return s, nil
}

// ActorFrom returns the session email, or "system" for background work.
func ActorFrom(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok && s.Email != "" {
		return s.Email
	}
	return "system"
}
