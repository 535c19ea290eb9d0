package model

import (
	"kstor/internal/armor"
	"kstor/internal/crypto"
)

// KeychainItem is a user's copy of one group's private key, sealed with
// authenticated public-key encryption from the group's pubk to the
// owning user's keypair (spec.md §3).
type KeychainItem struct {
	GroupID        string
	GroupPubk      armor.PublicKey
	EncryptedPrivk armor.Ciphertext

	privk *crypto.KeyPair
}

// Unlocked reports whether the group private key is currently decrypted.
func (k *KeychainItem) Unlocked() bool {
	return k.privk != nil
}

// Privk exposes the decrypted group keypair. Only valid while Unlocked.
func (k *KeychainItem) Privk() *crypto.KeyPair {
	return k.privk
}

// unlock decrypts EncryptedPrivk using the owning user's keypair, per
// User.unlock's per-item step (spec.md §4.2): kci.privk =
// open_pair(kci.group_pubk, user.privk, kci.encrypted_privk).
func (k *KeychainItem) unlock(userPrivk *crypto.KeyPair) error {
	if k.Unlocked() {
		return nil
	}
	plain, err := crypto.OpenPair(k.GroupPubk, userPrivk, k.EncryptedPrivk)
	if err != nil {
		return err
	}
	kp, err := crypto.KeyPairFromPrivate(plain)
	for i := range plain {
		plain[i] = 0
	}
	if err != nil {
		return err
	}
	k.privk = kp
	return nil
}

// seal re-encrypts the group private key for the owning user. The group
// key is self-authenticating: it seals itself (sender == plaintext's own
// keypair), addressed to whichever user pubk currently holds the item,
// so unlock's open_pair(kci.group_pubk, user.privk, ...) always verifies
// against the same sender regardless of who granted or re-sealed it.
func (k *KeychainItem) seal(userPubk armor.PublicKey) error {
	if !k.Unlocked() {
		return nil
	}
	sealed, err := crypto.SealPair(userPubk, k.privk, crypto.PrivateKeyBytes(k.privk))
	if err != nil {
		return err
	}
	k.EncryptedPrivk = sealed
	return nil
}

func (k *KeychainItem) lock() {
	if k.privk != nil {
		k.privk.Zero()
		k.privk = nil
	}
}

// Group is a named collection of members sharing a keypair; the private
// half never persists (spec.md §3) — it exists only inside members'
// KeychainItems.
type Group struct {
	ID   string
	Name string
	Pubk armor.PublicKey

	Dirty bool
}

func NewGroup(id, name string, pubk armor.PublicKey) *Group {
	return &Group{ID: id, Name: name, Pubk: pubk, Dirty: true}
}
