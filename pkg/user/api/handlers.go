package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/amiskov/authgate/pkg/autherr"
	"github.com/amiskov/authgate/pkg/common"
	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/session"
	"github.com/amiskov/authgate/pkg/user"
	"github.com/amiskov/authgate/pkg/web"
)

const (
	DashboardPath = "/dashboard"
	inProgressMsg = "A sign-in request is already in progress."
)

// Only these flash messages are shown; anything else in the query is ignored.
var flashes = map[string]struct{}{
	"Signed out": {},
}

type (
	IRenderer interface {
		Render(w http.ResponseWriter, r *http.Request, status int, name string, data any)
	}

	ISignInRecorder interface {
		SignIn(kind, outcome string)
	}

	ICookieRenewer interface {
		Renew(w http.ResponseWriter, sessionID string) error
	}

	UserHandler struct {
		Renderer IRenderer
		Metrics  ISignInRecorder
		Cookies  ICookieRenewer
		csrfKey  []byte

		mu       sync.Mutex
		inflight map[string]formCloser
	}

	formCloser interface {
		Close()
	}

	loginPage struct {
		web.Base
		Email      string
		Error      string
		Flash      string
		Submitting bool
	}

	registerPage struct {
		web.Base
		Name       string
		Email      string
		Error      string
		Submitting bool
	}
)

func NewUserHandler(rd IRenderer, cookies ICookieRenewer, csrfKey []byte, m ISignInRecorder) *UserHandler {
	return &UserHandler{
		Renderer: rd,
		Metrics:  m,
		Cookies:  cookies,
		csrfKey:  csrfKey,
		inflight: make(map[string]formCloser),
	}
}

func (uh *UserHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	st, ok := uh.store(w, r)
	if !ok {
		return
	}
	snap := st.Snapshot()
	if snap.Loading || snap.User != nil {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}

	page := loginPage{
		Base:  web.Base{Title: "Sign in", CSRF: common.CSRFToken(uh.csrfKey, st.ID())},
		Error: snap.Error,
	}
	if flash := r.URL.Query().Get("flash"); flash != "" {
		if _, known := flashes[flash]; known {
			page.Flash = flash
		}
	}
	uh.Renderer.Render(w, r, http.StatusOK, "login", page)
}

func (uh *UserHandler) LogIn(w http.ResponseWriter, r *http.Request) {
	st, ok := uh.store(w, r)
	if !ok || !uh.checkCSRF(w, r, st) {
		return
	}

	form := user.NewLoginForm(r.PostFormValue("email"), r.PostFormValue("password"))
	if !uh.begin(st.ID(), form) {
		uh.Renderer.Render(w, r, http.StatusConflict, "login", loginPage{
			Base:       web.Base{Title: "Sign in", CSRF: common.CSRFToken(uh.csrfKey, st.ID())},
			Email:      form.Email,
			Error:      inProgressMsg,
			Submitting: true,
		})
		return
	}
	defer uh.end(st.ID(), form)

	_, err := form.Submit(r.Context(), st)
	uh.record("login", err)
	if err == nil {
		logger.Log(r.Context()).Infof("user/api: `%s` signed in", form.Email)
		uh.renewCookie(w, r, st)
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	if uh.gone(w, r, err) {
		return
	}

	logger.Log(r.Context()).Infof("user/api: sign in failed for `%s`, %v", form.Email, err)
	uh.Renderer.Render(w, r, statusFor(err), "login", loginPage{
		Base:       web.Base{Title: "Sign in", CSRF: common.CSRFToken(uh.csrfKey, st.ID())},
		Email:      form.Email,
		Error:      form.Error,
		Submitting: form.Submitting(),
	})
}

func (uh *UserHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	st, ok := uh.store(w, r)
	if !ok {
		return
	}
	if snap := st.Snapshot(); snap.Loading || snap.User != nil {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	uh.Renderer.Render(w, r, http.StatusOK, "register", registerPage{
		Base: web.Base{Title: "Sign up", CSRF: common.CSRFToken(uh.csrfKey, st.ID())},
	})
}

func (uh *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	st, ok := uh.store(w, r)
	if !ok || !uh.checkCSRF(w, r, st) {
		return
	}

	form := user.NewRegisterForm(r.PostFormValue("name"), r.PostFormValue("email"), r.PostFormValue("password"))
	page := registerPage{
		Base:  web.Base{Title: "Sign up", CSRF: common.CSRFToken(uh.csrfKey, st.ID())},
		Name:  form.Name,
		Email: form.Email,
	}
	if !uh.begin(st.ID(), form) {
		page.Error = inProgressMsg
		page.Submitting = true
		uh.Renderer.Render(w, r, http.StatusConflict, "register", page)
		return
	}
	defer uh.end(st.ID(), form)

	_, err := form.Submit(r.Context(), st)
	uh.record("register", err)
	if err == nil {
		logger.Log(r.Context()).Infof("user/api: `%s` registered", form.Email)
		uh.renewCookie(w, r, st)
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	if uh.gone(w, r, err) {
		return
	}

	logger.Log(r.Context()).Infof("user/api: registration failed for `%s`, %v", form.Email, err)
	page.Error = form.Error
	uh.Renderer.Render(w, r, statusFor(err), "register", page)
}

func (uh *UserHandler) store(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	st, err := session.FromContext(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("user/api: %v", err)
		http.Error(w, "session required", http.StatusInternalServerError)
		return nil, false
	}
	return st, true
}

// renewCookie makes the cookie outlive the record saved by the sign-in.
func (uh *UserHandler) renewCookie(w http.ResponseWriter, r *http.Request, st *session.Store) {
	if uh.Cookies == nil {
		return
	}
	if err := uh.Cookies.Renew(w, st.ID()); err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't renew session cookie, %v", err)
	}
}

func (uh *UserHandler) checkCSRF(w http.ResponseWriter, r *http.Request, st *session.Store) bool {
	if !common.ValidCSRF(uh.csrfKey, st.ID(), r.PostFormValue("csrf")) {
		logger.Log(r.Context()).Warnf("user/api: bad csrf token for session `%s`", st.ID())
		http.Error(w, "invalid form token", http.StatusForbidden)
		return false
	}
	return true
}

// begin registers form as the one in-flight submission of the session.
func (uh *UserHandler) begin(sessionID string, form formCloser) bool {
	uh.mu.Lock()
	defer uh.mu.Unlock()
	if _, busy := uh.inflight[sessionID]; busy {
		return false
	}
	uh.inflight[sessionID] = form
	return true
}

func (uh *UserHandler) end(sessionID string, form formCloser) {
	uh.mu.Lock()
	if uh.inflight[sessionID] == form {
		delete(uh.inflight, sessionID)
	}
	uh.mu.Unlock()
	form.Close()
}

// gone handles responses nobody is waiting for anymore: the client hung up,
// or the session was signed out or dropped while the request was in flight.
func (uh *UserHandler) gone(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, user.ErrStaleResponse), errors.Is(err, context.Canceled):
		logger.Log(r.Context()).Debugf("user/api: discarding late response, %v", err)
		return true
	case errors.Is(err, session.ErrStaleResponse), errors.Is(err, session.ErrClosed):
		logger.Log(r.Context()).Infof("user/api: session changed during sign in, %v", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return true
	}
	return false
}

func (uh *UserHandler) record(kind string, err error) {
	if uh.Metrics == nil {
		return
	}
	uh.Metrics.SignIn(kind, outcome(err))
}

func outcome(err error) string {
	var (
		verr *autherr.ValidationError
		aerr *autherr.AuthenticationError
		nerr *autherr.NetworkError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &aerr):
		return "rejected"
	case errors.As(err, &nerr):
		return "unreachable"
	default:
		return "error"
	}
}

func statusFor(err error) int {
	var (
		verr *autherr.ValidationError
		nerr *autherr.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nerr):
		return http.StatusBadGateway
	default:
		return http.StatusUnauthorized
	}
}
