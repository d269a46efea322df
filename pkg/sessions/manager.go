package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/session"
)

const issuer = "authgate"

type Repo interface {
	session.Repo
	Get(ctx context.Context, sessionID string) (*session.Record, error)
}

type expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Options struct {
	CookieName     string
	CookieSecure   bool
	TTL            time.Duration
	RestoreTimeout time.Duration
	// Stores idle for longer are dropped from memory. Authenticated ones can
	// still be restored from the repo.
	IdleTimeout time.Duration
}

// SessionManager maps session cookies to live session stores.
type SessionManager struct {
	secret []byte
	repo   Repo
	api    session.Authenticator
	opts   Options
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*session.Store
}

func NewSessionManager(secret []byte, repo Repo, api session.Authenticator, opts Options) *SessionManager {
	if opts.CookieName == "" {
		opts.CookieName = "authgate_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = 5 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &SessionManager{
		secret: secret,
		repo:   repo,
		api:    api,
		opts:   opts,
		now:    time.Now,
		stores: make(map[string]*session.Store),
	}
}

// Resolve returns the store for the client behind r. Unknown clients get a
// fresh anonymous store and a cookie; known but evicted ones get a store that
// restores itself in the background.
func (sm *SessionManager) Resolve(w http.ResponseWriter, r *http.Request) *session.Store {
	ctx := r.Context()
	cookie, err := r.Cookie(sm.opts.CookieName)
	if err != nil {
		return sm.issue(w)
	}
	sessionID, err := sm.SessionIDFromToken(cookie.Value)
	if err != nil {
		logger.Log(ctx).Debugf("sessions/manager: rejecting session cookie, %v", err)
		return sm.issue(w)
	}

	if st := sm.lookup(sessionID); st != nil {
		return st
	}

	rec, err := sm.repo.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		logger.Log(ctx).Errorf("sessions/manager: can't load session `%s`, %v", sessionID, err)
	}
	if err != nil || rec.Expired(sm.now()) {
		st, _ := sm.getOrCreate(sessionID, nil)
		return st
	}

	st, created := sm.getOrCreate(sessionID, rec)
	if created {
		go sm.restore(st)
	}
	return st
}

func (sm *SessionManager) restore(st *session.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), sm.opts.RestoreTimeout)
	defer cancel()
	st.Restore(ctx)
}

func (sm *SessionManager) issue(w http.ResponseWriter) *session.Store {
	sessionID := uuid.NewString()
	st, _ := sm.getOrCreate(sessionID, nil)
	if err := sm.setCookie(w, sessionID); err != nil {
		logger.Log(context.Background()).Errorf("sessions/manager: %v", err)
	}
	return st
}

// Renew re-issues the cookie of sessionID so it lives as long as a record
// saved now. Called after every successful sign-in.
func (sm *SessionManager) Renew(w http.ResponseWriter, sessionID string) error {
	return sm.setCookie(w, sessionID)
}

func (sm *SessionManager) setCookie(w http.ResponseWriter, sessionID string) error {
	token, err := sm.CreateToken(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sm.now().Add(sm.opts.TTL),
		HttpOnly: true,
		Secure:   sm.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// lookup touches the store under mu so Cleanup can't evict it in between.
func (sm *SessionManager) lookup(sessionID string) *session.Store {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	st, ok := sm.stores[sessionID]
	if ok {
		st.Touch()
	}
	return st
}

func (sm *SessionManager) getOrCreate(sessionID string, rec *session.Record) (*session.Store, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if st, ok := sm.stores[sessionID]; ok {
		return st, false
	}
	opts := []session.Option{
		session.WithTTL(sm.opts.TTL),
		session.WithClock(func() time.Time { return sm.now() }),
	}
	if rec != nil {
		opts = append(opts, session.Restoring(rec))
	}
	st := session.NewStore(sessionID, sm.api, sm.repo, opts...)
	sm.stores[sessionID] = st
	return st, true
}

type claims struct {
	jwt.RegisteredClaims
}

func (sm *SessionManager) CreateToken(sessionID string) (string, error) {
	now := sm.now()
	data := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.opts.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, data).SignedString(sm.secret)
	if err != nil {
		return ``, fmt.Errorf("sessions/manager: can't sign token, %w", err)
	}
	return token, nil
}

func (sm *SessionManager) SessionIDFromToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{},
		func(*jwt.Token) (interface{}, error) {
			return sm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		return ``, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return ``, errors.New("sessions/manager: token is not valid")
	}
	if c.ID == "" {
		return ``, errors.New("sessions/manager: token has no session id")
	}
	return c.ID, nil
}

func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.stores)
}

// Cleanup drops idle stores from memory and returns how many were removed.
func (sm *SessionManager) Cleanup(ctx context.Context) int {
	now := sm.now()
	var idle []*session.Store

	sm.mu.Lock()
	for id, st := range sm.stores {
		if st.IdleFor(now) > sm.opts.IdleTimeout {
			delete(sm.stores, id)
			idle = append(idle, st)
		}
	}
	sm.mu.Unlock()

	for _, st := range idle {
		st.Close()
	}

	if exp, ok := sm.repo.(expirer); ok {
		if n, err := exp.DeleteExpired(ctx); err != nil {
			logger.Log(ctx).Errorf("sessions/manager: can't purge expired sessions, %v", err)
		} else if n > 0 {
			logger.Log(ctx).Infof("sessions/manager: purged %d expired sessions", n)
		}
	}
	return len(idle)
}

// Run sweeps idle stores every interval until ctx is done.
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sm.Cleanup(ctx); n > 0 {
				logger.Log(ctx).Debugf("sessions/manager: dropped %d idle stores", n)
			}
		}
	}
}
