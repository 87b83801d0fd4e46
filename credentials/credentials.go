// Package credentials registers console accounts and verifies their
// passwords. Passwords are stored as salted argon2id hashes.
package credentials

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const maxUsernameLen = 256

var (
	// ErrInvalidCredential is the single rejection returned by VerifyUser,
	// whether the username is unknown or the password is wrong.
	ErrInvalidCredential = errors.New("invalid username or password")
	// ErrInvalidUsername is returned by AddUser for an unusable username.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrEmptyPassword is returned by AddUser for an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrNotConfigured is returned when writing to the placeholder store.
	ErrNotConfigured = errors.New("credential store not configured")
)

// Identity is what a successful verification yields.
type Identity struct {
	Username string
}

// Store registers and verifies username/password pairs.
type Store interface {
	// AddUser stores a credential for username, replacing any previous one.
	AddUser(username, password string) error
	// VerifyUser returns the identity for username if password matches,
	// ErrInvalidCredential otherwise.
	VerifyUser(username, password string) (Identity, error)
}

// NoOpStore is the credential counterpart of session.NoOpStore: it rejects
// every login and refuses registrations until a real store is configured.
type NoOpStore struct{}

var _ Store = NoOpStore{}

func (NoOpStore) AddUser(string, string) error { return ErrNotConfigured }

func (NoOpStore) VerifyUser(string, string) (Identity, error) {
	return Identity{}, ErrInvalidCredential
}

// ValidateUsername checks that username can be used as a storage key.
// Usernames are case-sensitive and stored exactly as given.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case len(username) > maxUsernameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUsername, maxUsernameLen)
	case !utf8.ValidString(username):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidUsername)
	}
	return nil
}
