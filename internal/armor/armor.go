// Package armor provides an ASCII-safe envelope around the binary blobs
// that cross the crypto/model boundary: ciphertexts, public keys, private
// keys and KDF parameters. It follows the same base64-everywhere convention
// the teacher repository uses for crypto material (see model.AESKey and
// account.SecretStore), generalized into small typed wrappers so callers
// can't accidentally treat a public key as a ciphertext.
package armor

import "encoding/base64"

// Value is an opaque, ASCII-safe envelope around a byte string.
type Value string

// Encode wraps raw bytes into an armored Value.
func Encode(b []byte) Value {
	return Value(base64.StdEncoding.EncodeToString(b))
}

// Decode round-trips an armored Value back to bytes.
func (v Value) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(string(v))
}

// Bytes is Decode without the error, for call sites that already trust
// the value (e.g. round-tripped through our own Encode).
func (v Value) Bytes() []byte {
	b, err := v.Decode()
	if err != nil {
		return nil
	}
	return b
}

func (v Value) String() string {
	return string(v)
}

func (v Value) Empty() bool {
	return v == ""
}

type (
	// Ciphertext is an armored, symmetrically or asymmetrically sealed blob.
	Ciphertext Value
	// PublicKey is an armored public key.
	PublicKey Value
	// PrivateKey is an armored private key. Never persisted in plaintext
	// form; always sealed inside a Ciphertext before it touches storage.
	PrivateKey Value
)

func (c Ciphertext) Bytes() []byte  { return Value(c).Bytes() }
func (c Ciphertext) String() string { return string(c) }
func (c Ciphertext) Empty() bool    { return c == "" }

func (p PublicKey) Bytes() []byte  { return Value(p).Bytes() }
func (p PublicKey) String() string { return string(p) }
func (p PublicKey) Empty() bool    { return p == "" }

func (p PrivateKey) Bytes() []byte  { return Value(p).Bytes() }
func (p PrivateKey) String() string { return string(p) }
func (p PrivateKey) Empty() bool    { return p == "" }

func EncodeCiphertext(b []byte) Ciphertext { return Ciphertext(Encode(b)) }
func EncodePublicKey(b []byte) PublicKey   { return PublicKey(Encode(b)) }
func EncodePrivateKey(b []byte) PrivateKey { return PrivateKey(Encode(b)) }
