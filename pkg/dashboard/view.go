// Package dashboard builds the protected account page from a signed-in user.
package dashboard

import (
	"context"
	"strings"

	"github.com/amiskov/authgate/pkg/user"
)

const recentlyLabel = "Recently"

type Row struct {
	Label string
	Value string
}

// Account is the read-only view of a user shown on the dashboard.
type Account struct {
	Name    string
	Email   string
	Welcome string
	Initial string
	Rows    []Row
}

func NewAccount(u *user.User, loc Locale) Account {
	a := Account{
		Name:    u.Name,
		Email:   u.Email,
		Welcome: "Welcome, " + u.Name,
		Initial: u.Initial(),
	}
	a.Rows = append(a.Rows,
		Row{Label: "Full name", Value: u.Name},
		Row{Label: "Email address", Value: u.Email},
	)
	if u.HasBio() {
		a.Rows = append(a.Rows, Row{Label: "Bio", Value: strings.TrimSpace(*u.Bio)})
	}
	created := recentlyLabel
	if u.HasCreatedAt() {
		created = loc.FormatDate(*u.CreatedAt)
	}
	a.Rows = append(a.Rows, Row{Label: "Account created", Value: created})
	return a
}

// Row returns the value of the row with the given label.
func (a Account) Row(label string) (string, bool) {
	for _, r := range a.Rows {
		if r.Label == label {
			return r.Value, true
		}
	}
	return "", false
}

type Logouter interface {
	Logout(ctx context.Context)
}

// Page holds transient UI state of one dashboard view.
type Page struct {
	MenuOpen bool
}

// SignOut closes the menu before logging out, so nothing is left open when
// the session goes away.
func (p *Page) SignOut(ctx context.Context, l Logouter) {
	p.MenuOpen = false
	l.Logout(ctx)
}
