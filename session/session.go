// Package session implements the console's server-side session lifecycle:
// issuing opaque tokens, looking them up, refreshing their activity time and
// expiring them after a sliding window of inactivity.
package session

import (
	"errors"
	"fmt"

	"github.com/jmcleod/sessionvault/internal/uuid"
)

var (
	// ErrInvalidSession is wrapped by every "this token cannot be used"
	// outcome. Callers that do not care why should test for it.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionNotFound indicates the token was never issued or was removed.
	ErrSessionNotFound = fmt.Errorf("%w: not found", ErrInvalidSession)
	// ErrSessionExpired indicates the token existed but had been idle for
	// longer than the configured maximum and was swept by this call.
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrInvalidSession)
	// ErrEmptyToken is returned when storing a session under an empty token.
	ErrEmptyToken = errors.New("empty session token")
)

// Payload is the data attached to a session. It is stored as an opaque JSON
// blob; the store never interprets it. Values holds arbitrary JSON data and
// reads back exactly as written, including an empty map versus nil. Numbers
// come back as float64, as with any decoded JSON.
type Payload struct {
	Username  string         `json:"username,omitempty"`
	CSRFToken string         `json:"csrf_token"`
	Values    map[string]any `json:"values"`
}

// NewPayload returns a payload for username with a fresh CSRF value.
func NewPayload(username string) Payload {
	return Payload{
		Username:  username,
		CSRFToken: uuid.New(),
	}
}

// Store abstracts the session lifecycle so that a placeholder can stand in
// before the persistent store is configured.
type Store interface {
	// NewSession stores payload under a freshly generated token and
	// returns the token.
	NewSession(payload Payload) (string, error)
	// Set creates or replaces the payload for token and stamps the current
	// time as its last activity.
	Set(token string, payload Payload) error
	// Get sweeps expired sessions and then looks token up. The boolean is
	// false if the token is unknown or has just expired.
	Get(token string) (Payload, bool, error)
	// VerifyToken behaves like Get but also refreshes the last activity of
	// a live session. An unusable token yields an error wrapping
	// ErrInvalidSession.
	VerifyToken(token string) (Payload, error)
	// Delete removes a session. Removing an unknown token is not an error.
	Delete(token string) error
	// Sweep removes every expired session and returns how many were removed.
	Sweep() (int, error)
}
