// Package console wires the session and credential stores together for the
// console's request-handling layer. A Console is constructed explicitly from
// a config.Config and handed to the handlers; there is no package-level
// instance.
package console

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmcleod/sessionvault/config"
	"github.com/jmcleod/sessionvault/credentials"
	"github.com/jmcleod/sessionvault/session"
	"github.com/jmcleod/sessionvault/storage"
)

// Console owns the store and everything the handlers need from it.
type Console struct {
	cfg         config.Config
	db          *storage.DB
	sessions    session.Store
	credentials credentials.Store
	logger      *slog.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	sessionOpts    []session.Option
	credentialOpts []credentials.Option
}

// WithLogger sets the logger shared by the console and its stores.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSessionOptions passes extra options to session.NewPersistentStore.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// WithCredentialOptions passes extra options to credentials.NewPersistentStore.
func WithCredentialOptions(opts ...credentials.Option) Option {
	return func(o *options) {
		o.credentialOpts = append(o.credentialOpts, opts...)
	}
}

// New builds a Console. Without a configured session store it returns a
// console backed by the placeholder stores, which reject every login and
// token; otherwise it opens and initializes the store file.
func New(cfg config.Config, opts ...Option) (*Console, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Console{cfg: cfg, logger: o.logger}
	if !cfg.Configured() {
		o.logger.Warn("no session store configured, logins are disabled")
		c.sessions = session.NoOpStore{}
		c.credentials = credentials.NoOpStore{}
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionStore), 0o700); err != nil {
		return nil, fmt.Errorf("creating session store directory: %w", err)
	}
	db, err := storage.Open(cfg.SessionStore, storage.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, err
	}

	sessions, err := session.NewPersistentStore(db, cfg.MaxDuration(),
		append([]session.Option{session.WithLogger(o.logger)}, o.sessionOpts...)...)
	if err != nil {
		db.Close()
		return nil, err
	}
	creds, err := credentials.NewPersistentStore(db,
		append([]credentials.Option{credentials.WithLogger(o.logger)}, o.credentialOpts...)...)
	if err != nil {
		db.Close()
		return nil, err
	}

	c.db = db
	c.sessions = sessions
	c.credentials = creds
	o.logger.Info("session store ready",
		"path", cfg.SessionStore,
		"max_duration", cfg.MaxDuration())
	return c, nil
}

// Login verifies the credentials and opens a session carrying the username
// and a fresh CSRF token.
func (c *Console) Login(username, password string) (string, session.Payload, error) {
	id, err := c.credentials.VerifyUser(username, password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredential) {
			c.logger.Info("login rejected")
		}
		return "", session.Payload{}, err
	}
	payload := session.NewPayload(id.Username)
	token, err := c.sessions.NewSession(payload)
	if err != nil {
		return "", session.Payload{}, fmt.Errorf("creating session: %w", err)
	}
	c.logger.Info("login", "username", id.Username)
	return token, payload, nil
}

// Authenticate validates a bearer token and slides its expiry window.
func (c *Console) Authenticate(token string) (session.Payload, error) {
	p, err := c.sessions.VerifyToken(token)
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		c.logger.Debug("session expired")
	case errors.Is(err, session.ErrSessionNotFound):
		c.logger.Debug("session not found")
	}
	return p, err
}

// Logout removes the session behind token.
func (c *Console) Logout(token string) error {
	return c.sessions.Delete(token)
}

// AddUser registers or replaces a credential.
func (c *Console) AddUser(username, password string) error {
	return c.credentials.AddUser(username, password)
}

func (c *Console) Sessions() session.Store {
	return c.sessions
}

func (c *Console) Credentials() credentials.Store {
	return c.credentials
}

func (c *Console) Config() config.Config {
	return c.cfg
}

// Bootstrapping reports whether the console runs with placeholder stores.
func (c *Console) Bootstrapping() bool {
	return c.db == nil
}

// CookieHTTPOnly and CookieSecure are passed through from the configuration
// for whoever sets the session cookie.
func (c *Console) CookieHTTPOnly() bool {
	return c.cfg.SessionCookieHTTPOnly
}

func (c *Console) CookieSecure() bool {
	return c.cfg.SessionCookieSecure
}

// Close releases the store file. It is a no-op for a bootstrapping console.
func (c *Console) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
