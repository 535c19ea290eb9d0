package model

import (
	"kstor/internal/armor"
	"kstor/internal/crypto"
)

// Secret is the logical secrets row: one value_author/meta_author pair,
// plus ephemeral plaintext recovered by a per-group SecretValue (spec.md
// §3). "The secret" as a whole is this row plus its fan of SecretValues,
// one per group it has been shared with.
type Secret struct {
	ID            string
	ValueAuthorID string
	MetaAuthorID  string

	// GroupID is the group through which the current reader reached this
	// secret; populated by the repository on a per-read basis, not a
	// persisted column of this struct.
	GroupID string

	Plaintext []byte
	Metadata  SecretMeta

	Dirty bool
}

// SecretValue is one per-group sealed copy of a secret: a secret_values
// row (spec.md §6).
type SecretValue struct {
	SecretID           string
	GroupID            string
	Ciphertext         armor.Ciphertext
	EncryptedMetadata  armor.Ciphertext
}

// Session is the server-side memo of a successful password
// authentication (spec.md §3).
type Session struct {
	ID        string
	UserID    string
	SecretKey *crypto.SecretKey // passphrase-derived key, cached in memory
	CreatedAt int64
	UpdatedAt int64
}
