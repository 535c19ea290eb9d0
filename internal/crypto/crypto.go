// Package crypto implements the KStor cryptographic primitives: a
// passphrase-based KDF, symmetric authenticated encryption ("secret box"),
// public-key authenticated encryption ("keypair box"), and the armored
// encodings that cross the boundary of this package.
//
// The symmetric and public-key constructions are NaCl secretbox/box
// (XSalsa20-Poly1305, Curve25519), following the same pairing of
// golang.org/x/crypto/argon2 with golang.org/x/crypto/nacl/secretbox used
// elsewhere in the retrieved example pack. The KDF is Argon2id.
package crypto

import (
	"crypto/rand"
	"encoding/json"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"kstor/internal/armor"
	"kstor/internal/kerr"
)

const (
	// KeySize is the length, in bytes, of a secretbox key and of an
	// Argon2id digest.
	KeySize = 32

	// CurrentKDFVersion is bumped whenever the KDF parameter defaults
	// below change, so kdf_params_obsolete? can flag stale records.
	CurrentKDFVersion = 1

	saltSize        = 16
	nonceSize       = 24
	argonTimeCost   = 3
	argonMemoryKiB  = 64 * 1024 // 64 MiB
	argonParallel   = 4
	publicKeySize   = 32
	privateKeySize  = 32
)

// KDFParams records everything but the passphrase needed to re-derive the
// same SecretKey: version, salt, and the Argon2id cost parameters.
type KDFParams struct {
	Version    uint32       `json:"version"`
	Salt       armor.Value  `json:"salt"`
	OpsLimit   uint32       `json:"opslimit"`
	MemLimit   uint32       `json:"memlimit"`
	DigestSize uint32       `json:"digest_size"`
}

// Armor serializes the params into one armored blob, matching the way the
// teacher stores structured crypto parameters (account.SecretStore.
// MasterKeyParams) as a single base64 string.
func (p KDFParams) Armor() (armor.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", kerr.Wrap(kerr.CryptoUnspecified, err)
	}
	return armor.Encode(b), nil
}

// UnarmorKDFParams is the inverse of KDFParams.Armor.
func UnarmorKDFParams(v armor.Value) (KDFParams, error) {
	var p KDFParams
	raw, err := v.Decode()
	if err != nil {
		return p, kerr.New(kerr.CryptoUnspecified, "malformed kdf params")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, kerr.New(kerr.CryptoUnspecified, "malformed kdf params")
	}
	return p, nil
}

// Obsolete reports whether params were derived under a previous library
// version, per spec's kdf_params_obsolete?.
func (p KDFParams) Obsolete() bool {
	return p.Version != CurrentKDFVersion
}

// SecretKey is a symmetric key derived from a user passphrase. It caches
// the KDFParams it was derived under so callers can persist/re-derive it.
type SecretKey struct {
	Value  [KeySize]byte
	Params KDFParams
}

// Zero clears the key material. Call once the key is no longer needed.
func (k *SecretKey) Zero() {
	for i := range k.Value {
		k.Value[i] = 0
	}
}

// KeyPair is a Curve25519 keypair used for seal_pair/open_pair.
type KeyPair struct {
	Public  [publicKeySize]byte
	Private [privateKeySize]byte
}

func (kp *KeyPair) Zero() {
	for i := range kp.Private {
		kp.Private[i] = 0
	}
}

// DeriveKey implements derive_key. When params is the zero value, fresh
// KDF parameters are generated (new salt, current defaults); otherwise the
// supplied params (typically loaded from storage) are reused so the same
// passphrase reproduces the same key.
func DeriveKey(passphrase string, params *KDFParams) (*SecretKey, error) {
	var p KDFParams
	if params == nil || params.Salt.Empty() {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, kerr.Wrap(kerr.KDFFail, err)
		}
		p = KDFParams{
			Version:    CurrentKDFVersion,
			Salt:       armor.Encode(salt),
			OpsLimit:   argonTimeCost,
			MemLimit:   argonMemoryKiB,
			DigestSize: KeySize,
		}
	} else {
		p = *params
	}

	salt, err := p.Salt.Decode()
	if err != nil {
		return nil, kerr.New(kerr.KDFFail, "malformed salt")
	}

	digest := argon2.IDKey([]byte(passphrase), salt, p.OpsLimit, p.MemLimit, argonParallel, p.DigestSize)

	sk := &SecretKey{Params: p}
	copy(sk.Value[:], digest)
	for i := range digest {
		digest[i] = 0
	}

	return sk, nil
}

// GenerateKeypair implements generate_keypair.
func GenerateKeypair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, kerr.Wrap(kerr.CryptoUnspecified, err)
	}
	kp := &KeyPair{Public: *pub, Private: *priv}
	return kp, nil
}

// SealSecret implements seal_secret: symmetric authenticated encryption
// with a fresh random nonce prepended to the returned envelope.
func SealSecret(key *SecretKey, plaintext []byte) (armor.Ciphertext, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", kerr.Wrap(kerr.EncryptFail, err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key.Value)
	return armor.EncodeCiphertext(sealed), nil
}

// OpenSecret implements open_secret.
func OpenSecret(key *SecretKey, ciphertext armor.Ciphertext) ([]byte, error) {
	raw := ciphertext.Bytes()
	if len(raw) < nonceSize {
		return nil, kerr.New(kerr.DecryptFail, "ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key.Value)
	if !ok {
		return nil, kerr.New(kerr.DecryptFail, "secretbox authentication failed")
	}
	return plaintext, nil
}

// SealPair implements seal_pair: public-key authenticated encryption from
// sender to recipient, with a fresh random nonce prepended.
func SealPair(recipientPub armor.PublicKey, senderPriv *KeyPair, plaintext []byte) (armor.Ciphertext, error) {
	var recipient [publicKeySize]byte
	rb := recipientPub.Bytes()
	if len(rb) != publicKeySize {
		return "", kerr.New(kerr.BadKey, "malformed recipient public key")
	}
	copy(recipient[:], rb)

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", kerr.Wrap(kerr.EncryptFail, err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, &recipient, &senderPriv.Private)
	return armor.EncodeCiphertext(sealed), nil
}

// OpenPair implements open_pair. The sender's declared public key is
// cryptographically verified: box.Open fails unless the ciphertext was
// produced with the matching sender private key.
func OpenPair(senderPub armor.PublicKey, recipientPriv *KeyPair, ciphertext armor.Ciphertext) ([]byte, error) {
	var sender [publicKeySize]byte
	sb := senderPub.Bytes()
	if len(sb) != publicKeySize {
		return nil, kerr.New(kerr.BadKey, "malformed sender public key")
	}
	copy(sender[:], sb)

	raw := ciphertext.Bytes()
	if len(raw) < nonceSize {
		return nil, kerr.New(kerr.DecryptFail, "ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := box.Open(nil, raw[nonceSize:], &nonce, &sender, &recipientPriv.Private)
	if !ok {
		return nil, kerr.New(kerr.DecryptFail, "box authentication failed")
	}
	return plaintext, nil
}

// PublicKeyOf returns the armored public half of a keypair.
func PublicKeyOf(kp *KeyPair) armor.PublicKey {
	return armor.EncodePublicKey(kp.Public[:])
}

// PrivateKeyBytes exposes the raw private key for sealing into storage;
// callers must seal it (via SealSecret/SealPair) before it is persisted.
func PrivateKeyBytes(kp *KeyPair) []byte {
	return kp.Private[:]
}

// KeyPairFromPrivate rebuilds a KeyPair from a raw private key, recomputing
// the public half (used after OpenSecret/OpenPair recovers a plaintext
// private key).
func KeyPairFromPrivate(priv []byte) (*KeyPair, error) {
	if len(priv) != privateKeySize {
		return nil, kerr.New(kerr.BadKey, "malformed private key")
	}
	kp := &KeyPair{}
	copy(kp.Private[:], priv)
	pub, err := curve25519PublicFromPrivate(kp.Private)
	if err != nil {
		return nil, err
	}
	kp.Public = pub
	return kp, nil
}
