package user

import (
	"strings"
	"time"
	"unicode/utf8"
)

// User is the account profile returned by the auth API. Pages treat it as
// read-only; the session store replaces it wholesale.
type User struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Bio       *string    `json:"bio,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (u *User) HasBio() bool {
	return u != nil && u.Bio != nil && strings.TrimSpace(*u.Bio) != ""
}

func (u *User) HasCreatedAt() bool {
	return u != nil && u.CreatedAt != nil && !u.CreatedAt.IsZero()
}

// Initial is the upper-cased first letter of the name, used for the avatar.
func (u *User) Initial() string {
	if u == nil {
		return ""
	}
	r, size := utf8.DecodeRuneInString(strings.TrimSpace(u.Name))
	if size == 0 {
		return ""
	}
	return strings.ToUpper(string(r))
}
