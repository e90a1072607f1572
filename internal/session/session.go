// Package session carries the per-session scrape request binding through a
// context so concurrent sessions never share a current request.
package session

import (
	"context"
	"time"
)

type Session struct {
	RequestID int64
	Prompt    string
	Today     string
}

type contextKey struct{}

func With(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func From(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// RequestID returns the bound request id, or 0 when the context has none.
func RequestID(ctx context.Context) int64 {
	s, _ := From(ctx)
	return s.RequestID
}

// Today is the session date as YYYY-MM-DD, falling back to the current UTC date.
func Today(ctx context.Context) string {
	if s, ok := From(ctx); ok && s.Today != "" {
		return s.Today
	}
	return time.Now().UTC().Format(time.DateOnly)
}
