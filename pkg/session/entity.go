package session

import (
	"context"
	"errors"
	"time"

	"github.com/amiskov/authgate/pkg/user"
)

// Session is a point-in-time copy of one client's authentication state.
// While Loading is true User may be stale and must not be trusted.
type Session struct {
	User    *user.User
	Loading bool
	Error   string
}

// Record is what gets persisted to restore a Session later.
type Record struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	User       *user.User `json:"user"`
	Expiration time.Time  `json:"expiration"`
}

func (r *Record) Expired(now time.Time) bool {
	return !r.Expiration.IsZero() && now.After(r.Expiration)
}

type ctxKey string

const storeKey ctxKey = "sessionStore"

var (
	ErrNoSession      = errors.New("session: no session found")
	ErrStaleResponse  = errors.New("session: response arrived after the session changed")
	ErrClosed         = errors.New("session: store is closed")
	ErrNotFound       = errors.New("session: record not found")
	errNothingToRenew = errors.New("session: no token to restore from")
)

func WithStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, storeKey, st)
}

func FromContext(ctx context.Context) (*Store, error) {
	st, ok := ctx.Value(storeKey).(*Store)
	if !ok || st == nil {
		return nil, ErrNoSession
	}
	return st, nil
}
