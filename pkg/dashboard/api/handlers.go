package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amiskov/authgate/pkg/common"
	"github.com/amiskov/authgate/pkg/dashboard"
	"github.com/amiskov/authgate/pkg/gate"
	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/session"
	"github.com/amiskov/authgate/pkg/web"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
	StatePath     = "/dashboard/state"
	signedOutPath = "/login?flash=Signed+out"

	// Seconds before the loading page reloads itself when the event stream
	// is not available.
	loadingRefresh = 2
)

type (
	IRenderer interface {
		Render(w http.ResponseWriter, r *http.Request, status int, name string, data any)
	}

	IGateRecorder interface {
		GateDecision(state string)
	}

	DashboardHandler struct {
		Renderer      IRenderer
		Metrics       IGateRecorder
		csrfKey       []byte
		streamTimeout time.Duration
	}

	dashboardPage struct {
		web.Base
		Account dashboard.Account
		Page    dashboard.Page
	}

	loadingPage struct {
		web.Base
		StateURL string
	}
)

func NewDashboardHandler(rd IRenderer, csrfKey []byte, m IGateRecorder, streamTimeout time.Duration) *DashboardHandler {
	if streamTimeout <= 0 {
		streamTimeout = 30 * time.Second
	}
	return &DashboardHandler{
		Renderer:      rd,
		Metrics:       m,
		csrfKey:       csrfKey,
		streamTimeout: streamTimeout,
	}
}

// redirectNavigator answers the request with a single 303.
type redirectNavigator struct {
	w    http.ResponseWriter
	r    *http.Request
	done bool
}

func (n *redirectNavigator) NavigateTo(path string) {
	if n.done {
		return
	}
	n.done = true
	http.Redirect(n.w, n.r, path, http.StatusSeeOther)
}

// Dashboard renders the protected page. Every request mounts a fresh gate.
func (dh *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	st, err := session.FromContext(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("dashboard/api: %v", err)
		http.Error(w, "session required", http.StatusInternalServerError)
		return
	}

	snap := st.Snapshot()
	nav := &redirectNavigator{w: w, r: r}
	state := gate.New(LoginPath).Sync(snap, nav)
	dh.record(state)

	switch state {
	case gate.Initializing:
		dh.Renderer.Render(w, r, http.StatusOK, "loading", loadingPage{
			Base:     web.Base{Title: "Loading", Refresh: loadingRefresh},
			StateURL: StatePath,
		})
	case gate.Redirecting:
		logger.Log(r.Context()).Debugf("dashboard/api: session `%s` is not signed in", st.ID())
	case gate.Authenticated:
		dh.Renderer.Render(w, r, http.StatusOK, "dashboard", dashboardPage{
			Base: web.Base{
				Title: "Dashboard",
				CSRF:  common.CSRFToken(dh.csrfKey, st.ID()),
			},
			Account: dashboard.NewAccount(snap.User, dashboard.MatchLocale(r.Header.Get("Accept-Language"))),
			Page:    dashboard.Page{MenuOpen: r.URL.Query().Get("menu") == "open"},
		})
	}
}

type stateEvent struct {
	State string `json:"state"`
}

type navigateEvent struct {
	Location string `json:"location"`
}

// pendingNavigator holds the gate's navigation until the state event is out.
type pendingNavigator struct {
	path string
}

func (n *pendingNavigator) NavigateTo(path string) {
	n.path = path
}

// State streams gate states as server-sent events. It ends with one navigate
// event once the session is no longer loading.
func (dh *DashboardHandler) State(w http.ResponseWriter, r *http.Request) {
	st, err := session.FromContext(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("dashboard/api: %v", err)
		http.Error(w, "session required", http.StatusInternalServerError)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), dh.streamTimeout)
	defer cancel()

	nav := &pendingNavigator{}
	gate.Watch(ctx, st, gate.New(LoginPath), nav, func(state gate.State, _ session.Session) bool {
		sendEvent(ctx, w, flusher, "state", stateEvent{State: state.String()})
		switch {
		case nav.path != "":
			sendEvent(ctx, w, flusher, "navigate", navigateEvent{Location: nav.path})
			return false
		case state == gate.Authenticated:
			sendEvent(ctx, w, flusher, "navigate", navigateEvent{Location: DashboardPath})
			return false
		}
		return true
	})
}

func sendEvent(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log(ctx).Errorf("dashboard/api: can't marshal `%s` event, %v", event, err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		logger.Log(ctx).Debugf("dashboard/api: can't write `%s` event, %v", event, err)
		return
	}
	flusher.Flush()
}

func (dh *DashboardHandler) Logout(w http.ResponseWriter, r *http.Request) {
	st, err := session.FromContext(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("dashboard/api: %v", err)
		http.Error(w, "session required", http.StatusInternalServerError)
		return
	}
	if !common.ValidCSRF(dh.csrfKey, st.ID(), r.PostFormValue("csrf")) {
		logger.Log(r.Context()).Warnf("dashboard/api: bad csrf token for session `%s`", st.ID())
		http.Error(w, "invalid form token", http.StatusForbidden)
		return
	}

	page := dashboard.Page{MenuOpen: r.PostFormValue("menu") == "open"}
	page.SignOut(r.Context(), st)
	logger.Log(r.Context()).Infof("dashboard/api: session `%s` signed out", st.ID())
	http.Redirect(w, r, signedOutPath, http.StatusSeeOther)
}

func (dh *DashboardHandler) record(state gate.State) {
	if dh.Metrics != nil {
		dh.Metrics.GateDecision(state.String())
	}
}
