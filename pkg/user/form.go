package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"github.com/amiskov/authgate/pkg/autherr"
)

var (
	ErrSubmitInProgress = errors.New("user: a sign-in request is already in progress")
	ErrStaleResponse    = errors.New("user: response arrived after the form was closed")
)

type Loginer interface {
	Login(ctx context.Context, email, password string) (*User, error)
}

type Registerer interface {
	Register(ctx context.Context, name, email, password string) (*User, error)
}

// submission guards one form against double submits and late responses.
type submission struct {
	mu         sync.Mutex
	submitting bool
	closed     bool
}

func (s *submission) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStaleResponse
	}
	if s.submitting {
		return ErrSubmitInProgress
	}
	s.submitting = true
	return nil
}

// settle runs apply under the lock unless the form went away meanwhile.
func (s *submission) settle(ctx context.Context, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if s.closed || ctx.Err() != nil {
		return ErrStaleResponse
	}
	apply()
	return nil
}

func (s *submission) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Close tears the form down; responses still in flight are discarded.
func (s *submission) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type LoginForm struct {
	Email    string
	Password string
	Error    string

	submission
}

func NewLoginForm(email, password string) *LoginForm {
	return &LoginForm{Email: strings.TrimSpace(email), Password: password}
}

func (f *LoginForm) Validate() error {
	if err := validateEmail(f.Email); err != nil {
		return err
	}
	return validatePassword(f.Password)
}

// Submit signs in through l. Failures leave the message in Error and clear
// the password; the email is kept for the next attempt.
func (f *LoginForm) Submit(ctx context.Context, l Loginer) (*User, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		_ = f.settle(ctx, func() { f.Error = autherr.Message(err) })
		return nil, err
	}
	f.mu.Lock()
	f.Error = ""
	f.mu.Unlock()

	usr, err := l.Login(ctx, f.Email, f.Password)
	if serr := f.settle(ctx, func() {
		if err != nil {
			f.Error = autherr.Message(err)
			f.Password = ""
		}
	}); serr != nil {
		return nil, serr
	}
	return usr, err
}

type RegisterForm struct {
	Name     string
	Email    string
	Password string
	Error    string

	submission
}

func NewRegisterForm(name, email, password string) *RegisterForm {
	return &RegisterForm{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
}

func (f *RegisterForm) Validate() error {
	if f.Name == "" {
		return &autherr.ValidationError{Field: "name", Message: "Please enter your name."}
	}
	if err := validateEmail(f.Email); err != nil {
		return err
	}
	return validatePassword(f.Password)
}

func (f *RegisterForm) Submit(ctx context.Context, r Registerer) (*User, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		_ = f.settle(ctx, func() { f.Error = autherr.Message(err) })
		return nil, err
	}
	f.mu.Lock()
	f.Error = ""
	f.mu.Unlock()

	usr, err := r.Register(ctx, f.Name, f.Email, f.Password)
	if serr := f.settle(ctx, func() {
		if err != nil {
			f.Error = autherr.Message(err)
			f.Password = ""
		}
	}); serr != nil {
		return nil, serr
	}
	return usr, err
}

func validateEmail(email string) error {
	if email == "" {
		return &autherr.ValidationError{Field: "email", Message: "Please enter your email address."}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &autherr.ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return &autherr.ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return &autherr.ValidationError{Field: "password", Message: "Please enter your password."}
	}
	return nil
}
