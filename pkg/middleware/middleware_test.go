package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/amiskov/authgate/pkg/session"
)

type managerMock struct {
	calls int
	store *session.Store
}

func (m *managerMock) Resolve(http.ResponseWriter, *http.Request) *session.Store {
	m.calls++
	return m.store
}

func TestSessionMiddlewareAttachesStore(t *testing.T) {
	sm := &managerMock{store: session.NewStore("sid-1", nil, nil)}
	mw := NewSessionMiddleware(sm, "/metrics")

	var got *session.Store
	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = session.FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if got == nil || got.ID() != "sid-1" {
		t.Fatalf("expected store in context, got %v", got)
	}
}

func TestSessionMiddlewareSkipsPrefixes(t *testing.T) {
	sm := &managerMock{store: session.NewStore("sid-1", nil, nil)}
	mw := NewSessionMiddleware(sm, "/metrics", "/healthz")

	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := session.FromContext(r.Context()); err == nil {
			t.Fatalf("expected no store for skipped path")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if sm.calls != 0 {
		t.Fatalf("expected manager not consulted, got %d calls", sm.calls)
	}
}

func TestSetupTracing(t *testing.T) {
	mw := NewLoggingMiddleware(zap.NewNop().Sugar(), nil)
	var seen string
	h := mw.SetupTracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected generated request id echoed, got %q and %q", seen, rec.Header().Get(requestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "upstream-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-id" {
		t.Fatalf("expected upstream id kept, got %q", seen)
	}
}

type observerMock struct {
	mu     sync.Mutex
	route  string
	status int
}

func (o *observerMock) ObserveRequest(_ string, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.route = route
	o.status = status
}

func TestAccessLogObservesRoute(t *testing.T) {
	obs := &observerMock{}
	mw := NewLoggingMiddleware(zap.NewNop().Sugar(), obs)

	r := mux.NewRouter()
	r.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})
	r.Use(mw.SetupTracing, mw.SetupLogging, mw.AccessLog)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard?menu=open", nil))
	if obs.route != "/dashboard" || obs.status != http.StatusSeeOther {
		t.Fatalf("unexpected observation %q %d", obs.route, obs.status)
	}
}

func TestStatusRecorderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	var w http.ResponseWriter = sr
	f, ok := w.(http.Flusher)
	if !ok {
		t.Fatalf("expected recorder to implement http.Flusher")
	}
	_, _ = w.Write([]byte("data: {}\n\n"))
	f.Flush()
	if !rec.Flushed || sr.status != http.StatusOK || sr.bytes != 10 {
		t.Fatalf("unexpected recorder state flushed=%v status=%d bytes=%d", rec.Flushed, sr.status, sr.bytes)
	}
}
