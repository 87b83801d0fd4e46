package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the amount of entropy carried by a session token.
const TokenBytes = 32

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomToken returns TokenBytes of crypto/rand output as a fixed-length
// lowercase hex string.
func RandomToken() (string, error) {
	b, err := RandomBytes(TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	defer WipeBytes(b)
	return hex.EncodeToString(b), nil
}
