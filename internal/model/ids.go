package model

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/google/uuid"
)

// NewID generates a fresh identifier for users, groups and secrets.
func NewID() string {
	return uuid.NewString()
}

// NewToken generates a random, URL-safe opaque token for session ids and
// activation tokens, the same randomBytes-over-base58 pattern the
// teacher uses for config secrets.
func NewToken(nbytes int) string {
	buf := make([]byte, nbytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing means the OS entropy source is broken
	}
	return base58.Encode(buf)
}

// NewSessionID generates a random 128-bit session id (spec.md §3).
func NewSessionID() string {
	return NewToken(16)
}
