package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize maps equivalent Unicode spellings of a password to the same
// byte sequence before it is fed to the KDF.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
