package authapi

import "github.com/amiskov/authgate/pkg/user"

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

type meResponse struct {
	User *user.User `json:"user"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *errorResponse) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
