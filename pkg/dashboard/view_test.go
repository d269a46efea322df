package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/amiskov/authgate/pkg/user"
)

func strPtr(s string) *string {
	return &s
}

func TestNewAccountRows(t *testing.T) {
	u := &user.User{Name: "ann", Email: "a@b.com"}
	a := NewAccount(u, DefaultLocale())

	if a.Welcome != "Welcome, ann" || a.Initial != "A" {
		t.Fatalf("unexpected header %q %q", a.Welcome, a.Initial)
	}
	if v, _ := a.Row("Full name"); v != "ann" {
		t.Fatalf("unexpected name row %q", v)
	}
	if v, _ := a.Row("Email address"); v != "a@b.com" {
		t.Fatalf("unexpected email row %q", v)
	}
	if v, _ := a.Row("Account created"); v != "Recently" {
		t.Fatalf("expected fallback date, got %q", v)
	}
	if _, ok := a.Row("Bio"); ok {
		t.Fatalf("expected no bio row")
	}
}

func TestNewAccountBio(t *testing.T) {
	cases := []struct {
		bio  *string
		want string
		show bool
	}{
		{nil, "", false},
		{strPtr(""), "", false},
		{strPtr("   "), "", false},
		{strPtr("Hello"), "Hello", true},
	}
	for _, tc := range cases {
		a := NewAccount(&user.User{Name: "Ann", Bio: tc.bio}, DefaultLocale())
		v, ok := a.Row("Bio")
		if ok != tc.show || v != tc.want {
			t.Fatalf("bio %v: expected %v %q, got %v %q", tc.bio, tc.show, tc.want, ok, v)
		}
	}
}

func TestNewAccountCreatedAt(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	u := &user.User{Name: "Ann", CreatedAt: &created}

	cases := map[string]string{
		"en-US,en;q=0.9": "3/5/2024",
		"en-GB":          "05/03/2024",
		"de-DE,de;q=0.8": "5.3.2024",
		"ru":             "05.03.2024",
		"ja-JP":          "2024/3/5",
		"":               "3/5/2024",
		"xx":             "3/5/2024",
	}
	for header, want := range cases {
		v, _ := NewAccount(u, MatchLocale(header)).Row("Account created")
		if v != want {
			t.Fatalf("%q: expected %q, got %q", header, want, v)
		}
	}
}

type logoutRecorder struct {
	page       *Page
	menuAtCall bool
	calls      int
}

func (l *logoutRecorder) Logout(context.Context) {
	l.calls++
	l.menuAtCall = l.page.MenuOpen
}

func TestSignOutClosesMenuFirst(t *testing.T) {
	p := &Page{MenuOpen: true}
	l := &logoutRecorder{page: p}

	p.SignOut(context.Background(), l)

	if l.calls != 1 {
		t.Fatalf("expected one logout, got %d", l.calls)
	}
	if l.menuAtCall {
		t.Fatalf("expected menu closed before logout")
	}
}
