// Package gate decides what a protected page shows for a given Session:
// a loading placeholder, a redirect to the login page, or its content.
//
// Deciding is pure. Navigation is returned as an Effect and fired separately,
// at most once per transition into Redirecting.
package gate

import (
	"context"

	"github.com/amiskov/authgate/pkg/session"
)

type State int

const (
	Initializing State = iota
	Redirecting
	Authenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Redirecting:
		return "redirecting"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Decide maps a Session to a State. It performs no side effects.
func Decide(s session.Session) State {
	if s.Loading {
		return Initializing
	}
	if s.User == nil {
		return Redirecting
	}
	return Authenticated
}

// Navigation asks the caller to send the viewer to Path.
type Navigation struct {
	Path string
}

type Decision struct {
	State  State
	Effect *Navigation
}

type Navigator interface {
	NavigateTo(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) NavigateTo(path string) {
	f(path)
}

// Gate remembers the last State of one mounted page so that re-evaluating
// unchanged inputs never produces a second navigation.
type Gate struct {
	loginPath string
	last      State
	evaluated bool
}

func New(loginPath string) *Gate {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Gate{loginPath: loginPath}
}

func (g *Gate) LoginPath() string {
	return g.loginPath
}

// Evaluate decides the State for s and returns a navigation effect only when
// the page moves into Redirecting.
func (g *Gate) Evaluate(s session.Session) Decision {
	state := Decide(s)
	d := Decision{State: state}
	if state == Redirecting && (!g.evaluated || g.last != Redirecting) {
		d.Effect = &Navigation{Path: g.loginPath}
	}
	g.last = state
	g.evaluated = true
	return d
}

// Sync evaluates s and fires the resulting effect through nav.
func (g *Gate) Sync(s session.Session, nav Navigator) State {
	d := g.Evaluate(s)
	if d.Effect != nil && nav != nil {
		nav.NavigateTo(d.Effect.Path)
	}
	return d.State
}

type Source interface {
	Subscribe() (<-chan session.Session, func())
}

// Watch re-evaluates the gate on every Session change until ctx is done, the
// source closes, or onState returns false.
func Watch(ctx context.Context, src Source, g *Gate, nav Navigator, onState func(State, session.Session) bool) {
	updates, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			state := g.Sync(s, nav)
			if onState != nil && !onState(state, s) {
				return
			}
		}
	}
}
