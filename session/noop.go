package session

import "github.com/jmcleod/sessionvault/internal/util"

// NoOpStore stands in for the persistent store while the console is still
// bootstrapping. Nothing is remembered: lookups never find a session and
// writes are dropped. It must not serve real traffic.
type NoOpStore struct{}

var _ Store = NoOpStore{}

// NewSession still hands out a well-formed token so callers behave the same
// way they would against a real store.
func (NoOpStore) NewSession(Payload) (string, error) {
	return util.RandomToken()
}

func (NoOpStore) Set(string, Payload) error { return nil }

func (NoOpStore) Get(string) (Payload, bool, error) { return Payload{}, false, nil }

func (NoOpStore) VerifyToken(string) (Payload, error) { return Payload{}, ErrSessionNotFound }

func (NoOpStore) Delete(string) error { return nil }

func (NoOpStore) Sweep() (int, error) { return 0, nil }
