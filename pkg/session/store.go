package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amiskov/authgate/pkg/autherr"
	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/user"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, *user.User, error)
	Register(ctx context.Context, name, email, password string) (string, *user.User, error)
	Me(ctx context.Context, token string) (*user.User, error)
	Logout(ctx context.Context, token string) error
}

type Repo interface {
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}

const defaultTTL = 7 * 24 * time.Hour

// Store owns the Session of a single client. All mutation goes through
// Login, Register, Logout and Restore.
type Store struct {
	id   string
	api  Authenticator
	repo Repo
	ttl  time.Duration
	now  func() time.Time

	repoMu sync.Mutex

	mu       sync.Mutex
	state    Session
	token    string
	gen      uint64
	closed   bool
	lastSeen time.Time
	subs     map[int]chan Session
	nextSub  int
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Restoring starts the store from a persisted record. The store stays in
// Loading until Restore resolves it.
func Restoring(rec *Record) Option {
	return func(s *Store) {
		if rec == nil {
			return
		}
		s.token = rec.Token
		s.state = Session{User: rec.User, Loading: true}
	}
}

// WithClock sets the time source used for expiry and idle tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(id string, api Authenticator, repo Repo, opts ...Option) *Store {
	s := &Store{
		id:   id,
		api:  api,
		repo: repo,
		ttl:  defaultTTL,
		now:  time.Now,
		subs: make(map[int]chan Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSeen = s.now()
	return s
}

func (s *Store) ID() string {
	return s.id
}

func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Store) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Login authenticates against the API. When it returns without error the
// Session already holds the user, so navigating to a protected page is safe.
func (s *Store) Login(ctx context.Context, email, password string) (*user.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (string, *user.User, error) {
		return s.api.Login(ctx, email, password)
	})
}

func (s *Store) Register(ctx context.Context, name, email, password string) (*user.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (string, *user.User, error) {
		return s.api.Register(ctx, name, email, password)
	})
}

func (s *Store) authenticate(ctx context.Context, call func(context.Context) (string, *user.User, error)) (*user.User, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	gen := s.gen
	if s.state.Error != "" {
		s.state.Error = ""
		s.notifyLocked()
	}
	s.mu.Unlock()

	token, usr, err := call(ctx)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.closed {
			return nil, ErrStaleResponse
		}
		s.state.Error = autherr.Message(err)
		s.notifyLocked()
		return nil, fmt.Errorf("session/store: authentication failed, %w", err)
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return nil, ErrStaleResponse
	}
	// A new sign-in supersedes any restore still in flight.
	s.gen++
	gen = s.gen
	s.token = token
	s.state = Session{User: usr}
	s.notifyLocked()
	s.mu.Unlock()

	rec := &Record{ID: s.id, Token: token, User: usr, Expiration: s.now().Add(s.ttl)}
	if !s.persistIfCurrent(ctx, gen, rec) {
		return nil, ErrStaleResponse
	}
	return usr, nil
}

// Logout clears the Session before returning. Removing the persisted record
// and telling the API happen afterwards and only get logged on failure.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.gen++
	s.token = ""
	s.state = Session{}
	gen := s.gen
	s.notifyLocked()
	s.mu.Unlock()

	s.forgetIfCurrent(ctx, gen)
	if token == "" || s.api == nil {
		return
	}
	if err := s.api.Logout(ctx, token); err != nil {
		logger.Log(ctx).Warnf("session/store: remote logout failed, %v", err)
	}
}

// Restore re-validates the persisted token and refreshes the user. Any
// failure leaves the Session unauthenticated.
func (s *Store) Restore(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	token := s.token
	if !s.state.Loading {
		s.state.Loading = true
		s.notifyLocked()
	}
	s.mu.Unlock()

	var (
		usr *user.User
		err error
	)
	if token == "" {
		err = errNothingToRenew
	} else {
		usr, err = s.api.Me(ctx, token)
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.state = Session{User: usr}
		s.notifyLocked()
		s.mu.Unlock()
		s.persistIfCurrent(ctx, gen, &Record{ID: s.id, Token: token, User: usr, Expiration: s.now().Add(s.ttl)})
		return
	}

	var nerr *autherr.NetworkError
	unreachable := errors.As(err, &nerr)
	s.token = ""
	s.state = Session{}
	if unreachable {
		s.state.Error = autherr.NetworkMessage
	}
	s.notifyLocked()
	s.mu.Unlock()

	logger.Log(ctx).Infof("session/store: can't restore session `%s`, %v", s.id, err)
	// Keep the record when the API was unreachable so a later restore can
	// still succeed.
	if !unreachable {
		s.forgetIfCurrent(ctx, gen)
	}
}

// Subscribe delivers the current Session immediately and then the latest
// Session after every change. Slow receivers only miss intermediate states.
func (s *Store) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close drops the store; responses still in flight are discarded. The
// persisted record is kept so the session can be restored later.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) sameGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// notifyLocked must be called with mu held. Channels have a buffer of one and
// only the store sends, so draining first makes the send non-blocking.
func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state
	}
}

// persistIfCurrent saves rec unless a newer sign-in or a logout happened
// since gen. repoMu orders repo writes, so an older writer never lands after
// a newer one.
func (s *Store) persistIfCurrent(ctx context.Context, gen uint64, rec *Record) bool {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()
	if !s.sameGen(gen) {
		return false
	}
	if s.repo == nil {
		return true
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		logger.Log(ctx).Errorf("session/store: can't save session `%s`, %v", s.id, err)
	}
	return true
}

func (s *Store) forgetIfCurrent(ctx context.Context, gen uint64) {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()
	if s.repo == nil || !s.sameGen(gen) {
		return
	}
	if err := s.repo.Delete(ctx, s.id); err != nil {
		logger.Log(ctx).Errorf("session/store: can't delete session `%s`, %v", s.id, err)
	}
}
