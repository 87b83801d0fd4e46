package util

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	minArgon2idMemoryKiB = 8 * 1024
	minArgon2idKeyLen    = 16
)

// Argon2idParams are persisted next to every derived key so a change of
// defaults never invalidates existing hashes.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Validate rejects parameter sets too weak to be used for password storage.
// Callers that deliberately want cheap parameters (tests) skip it.
func (p Argon2idParams) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("argon2id time must be at least 1")
	case p.MemoryKiB < minArgon2idMemoryKiB:
		return fmt.Errorf("argon2id memory must be at least %d KiB", minArgon2idMemoryKiB)
	case p.Parallelism < 1:
		return fmt.Errorf("argon2id parallelism must be at least 1")
	case p.KeyLen < minArgon2idKeyLen:
		return fmt.Errorf("argon2id key length must be at least %d bytes", minArgon2idKeyLen)
	}
	return nil
}

func DeriveArgon2idKey(password, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.Time == 0 || params.Parallelism == 0 || params.KeyLen == 0 {
		return nil, fmt.Errorf("argon2id parameters must be non-zero")
	}
	return argon2.IDKey(password, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

// CompareArgon2idKey derives a key and compares it to expectedKey in
// constant time. The derived key is wiped before returning.
func CompareArgon2idKey(password, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}
