// Package autherr holds the error kinds surfaced by sign-in and session
// restoration, and the messages shown for them.
package autherr

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FallbackMessage = "Login failed. Please try again."
	NetworkMessage  = "Unable to reach the server. Please try again."
)

// AuthenticationError is a rejection by the auth API, usually bad credentials.
type AuthenticationError struct {
	Status  int
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed with status %d", e.Status)
	}
	return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Message)
}

// NetworkError means the auth API could not be reached or failed on its side.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("auth api unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError is raised before anything is sent to the auth API.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Message turns any sign-in error into the text displayed on the form.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var aerr *AuthenticationError
	if errors.As(err, &aerr) {
		if msg := strings.TrimSpace(aerr.Message); msg != "" {
			return msg
		}
		return FallbackMessage
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return NetworkMessage
	}
	return FallbackMessage
}
