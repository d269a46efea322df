package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amiskov/authgate/pkg/common"
	"github.com/amiskov/authgate/pkg/session"
	"github.com/amiskov/authgate/pkg/user"
)

type apiMock struct {
	meFunc func(ctx context.Context, token string) (*user.User, error)
}

func (m *apiMock) Login(context.Context, string, string) (string, *user.User, error) {
	return "tok-1", &user.User{Name: "Ann", Email: "a@b.com"}, nil
}

func (m *apiMock) Register(context.Context, string, string, string) (string, *user.User, error) {
	return "tok-1", &user.User{Name: "Ann", Email: "a@b.com"}, nil
}

func (m *apiMock) Me(ctx context.Context, token string) (*user.User, error) {
	if m.meFunc == nil {
		return &user.User{Name: "Ann", Email: "a@b.com"}, nil
	}
	return m.meFunc(ctx, token)
}

func (m *apiMock) Logout(context.Context, string) error {
	return nil
}

func newTestManager(repo Repo, api session.Authenticator) *SessionManager {
	return NewSessionManager(common.DeriveKey("secret", "cookie"), repo, api, Options{
		CookieName:     "sid",
		TTL:            time.Hour,
		RestoreTimeout: time.Second,
		IdleTimeout:    time.Minute,
	})
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatalf("expected session cookie to be set")
	return nil
}

func TestResolveIssuesCookieForNewClient(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	rec := httptest.NewRecorder()

	st := sm.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	c := cookieFrom(t, rec)
	if !c.HttpOnly || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes %+v", c)
	}
	id, err := sm.SessionIDFromToken(c.Value)
	if err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	if id != st.ID() {
		t.Fatalf("cookie session %q does not match store %q", id, st.ID())
	}
	if snap := st.Snapshot(); snap.User != nil || snap.Loading {
		t.Fatalf("expected anonymous session, got %+v", snap)
	}
}

func TestResolveReturnsLiveStore(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	rec := httptest.NewRecorder()
	first := sm.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	c := cookieFrom(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(c)
	rec2 := httptest.NewRecorder()
	second := sm.Resolve(rec2, req)

	if first != second {
		t.Fatalf("expected the same store for the same cookie")
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie for a known client")
	}
}

func TestResolveRejectsTamperedCookie(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	other := NewSessionManager(common.DeriveKey("other", "cookie"), NewMemoryRepo(), &apiMock{}, Options{CookieName: "sid"})
	forged, err := other.CreateToken("victim")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: forged})
	rec := httptest.NewRecorder()
	st := sm.Resolve(rec, req)

	if st.ID() == "victim" {
		t.Fatalf("forged token must not select a session")
	}
	cookieFrom(t, rec)
}

func TestResolveRestoresPersistedSession(t *testing.T) {
	repo := NewMemoryRepo()
	stale := &user.User{Name: "Old"}
	_ = repo.Save(context.Background(), &session.Record{
		ID: "sid-1", Token: "tok-1", User: stale, Expiration: time.Now().Add(time.Hour),
	})
	release := make(chan struct{})
	api := &apiMock{meFunc: func(_ context.Context, token string) (*user.User, error) {
		<-release
		return &user.User{Name: "Ann", Email: "a@b.com"}, nil
	}}
	sm := newTestManager(repo, api)
	token, err := sm.CreateToken("sid-1")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: token})
	st := sm.Resolve(httptest.NewRecorder(), req)

	if st.ID() != "sid-1" {
		t.Fatalf("unexpected store id %q", st.ID())
	}
	updates, cancel := st.Subscribe()
	defer cancel()
	if snap := <-updates; !snap.Loading {
		t.Fatalf("expected restoring store to start loading, got %+v", snap)
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if !snap.Loading {
				if snap.User == nil || snap.User.Name != "Ann" {
					t.Fatalf("unexpected restored session %+v", snap)
				}
				return
			}
		case <-deadline:
			t.Fatalf("restoration did not finish")
		}
	}
}

func TestResolveUnknownSessionIsAnonymous(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	token, err := sm.CreateToken("gone")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: token})

	st := sm.Resolve(httptest.NewRecorder(), req)
	if st.ID() != "gone" {
		t.Fatalf("expected cookie id kept, got %q", st.ID())
	}
	if snap := st.Snapshot(); snap.Loading || snap.User != nil {
		t.Fatalf("expected anonymous session, got %+v", snap)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	sm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := sm.CreateToken("sid-1")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	sm.now = time.Now
	if _, err := sm.SessionIDFromToken(token); err == nil {
		t.Fatalf("expected expired token rejected")
	}
}

func TestCleanupDropsIdleStores(t *testing.T) {
	repo := NewMemoryRepo()
	sm := newTestManager(repo, &apiMock{})
	st := sm.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	_ = repo.Save(context.Background(), &session.Record{ID: "old", Expiration: time.Now().Add(-time.Minute)})

	if n := sm.Cleanup(context.Background()); n != 0 {
		t.Fatalf("expected fresh store kept, dropped %d", n)
	}

	sm.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := sm.Cleanup(context.Background()); n != 1 {
		t.Fatalf("expected one idle store dropped, got %d", n)
	}
	if sm.Len() != 0 {
		t.Fatalf("expected registry empty, got %d", sm.Len())
	}
	if _, err := st.Login(context.Background(), "a@b.com", "pw"); err == nil {
		t.Fatalf("expected dropped store to be closed")
	}
	if _, err := repo.Get(context.Background(), "old"); err == nil {
		t.Fatalf("expected expired record purged")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sm.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop")
	}
}

func TestRenewExtendsCookie(t *testing.T) {
	sm := newTestManager(NewMemoryRepo(), &apiMock{})
	start := time.Now()
	sm.now = func() time.Time { return start }
	st := sm.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	later := start.Add(50 * time.Minute)
	sm.now = func() time.Time { return later }
	rec := httptest.NewRecorder()
	if err := sm.Renew(rec, st.ID()); err != nil {
		t.Fatalf("renew: %v", err)
	}

	c := cookieFrom(t, rec)
	if !c.Expires.After(start.Add(time.Hour)) {
		t.Fatalf("expected cookie to expire an hour after renewal, got %v", c.Expires)
	}
	sm.now = func() time.Time { return start.Add(90 * time.Minute) }
	id, err := sm.SessionIDFromToken(c.Value)
	if err != nil {
		t.Fatalf("renewed token must outlive the original one: %v", err)
	}
	if id != st.ID() {
		t.Fatalf("expected renewed cookie for %q, got %q", st.ID(), id)
	}
}

func TestResolveNeverReturnsEvictedStore(t *testing.T) {
	start := time.Now()
	for i := 0; i < 200; i++ {
		sm := newTestManager(NewMemoryRepo(), &apiMock{})
		sm.now = func() time.Time { return start }
		first := httptest.NewRecorder()
		sm.Resolve(first, httptest.NewRequest(http.MethodGet, "/", nil))
		c := cookieFrom(t, first)

		// The store is now idle for longer than IdleTimeout.
		idle := start.Add(2 * time.Minute)
		sm.now = func() time.Time { return idle }

		done := make(chan struct{})
		go func() {
			defer close(done)
			sm.Cleanup(context.Background())
		}()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(c)
		st := sm.Resolve(httptest.NewRecorder(), req)
		<-done

		updates, cancel := st.Subscribe()
		if _, ok := <-updates; !ok {
			t.Fatalf("iteration %d: resolved a store that cleanup already closed", i)
		}
		cancel()
	}
}
