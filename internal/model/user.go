// Package model implements the KStor domain objects: User, Group,
// KeychainItem, Secret, SecretMeta, ActivationToken and Session, plus the
// locked/unlocked transitions and dirty bookkeeping described by
// spec.md §3-4.2. It has no storage dependency of its own; repositories
// populate and persist these structs.
package model

import (
	"time"

	"kstor/internal/armor"
	"kstor/internal/crypto"
	"kstor/internal/kerr"
)

// Status is a User's lifecycle state.
type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusAdmin    Status = "admin"
	StatusArchived Status = "archived"
)

// User is the KStor account object. Pubk/KDFParams/EncryptedPrivk are
// persisted; Privk and the keychain items' Privk are ephemeral, present
// only between Unlock and Lock.
type User struct {
	ID     string
	Login  string
	Name   string
	Status Status

	Pubk           armor.PublicKey
	KDFParams      crypto.KDFParams
	EncryptedPrivk armor.Ciphertext

	Keychain map[string]*KeychainItem // keyed by group id

	privk *crypto.KeyPair

	// Dirty marks fields changed in memory that a repository must flush;
	// set by every mutating method below, cleared by the repository after
	// a successful write.
	Dirty bool
}

// NewUser constructs a fresh, uninitialized user (status new, no crypto
// data, empty keychain) as produced by user_create (spec.md §4.5).
func NewUser(id, login, name string, status Status) *User {
	return &User{
		ID:       id,
		Login:    login,
		Name:     name,
		Status:   status,
		Keychain: map[string]*KeychainItem{},
		Dirty:    true,
	}
}

// StripEphemeral returns a shallow copy of u suitable for handing to a
// repository: every ephemeral plaintext field (privk, and each keychain
// item's privk) is nil, regardless of u's own lock state. It never
// mutates u itself.
func (u *User) StripEphemeral() *User {
	cp := *u
	cp.privk = nil
	cp.Keychain = make(map[string]*KeychainItem, len(u.Keychain))
	for gid, kci := range u.Keychain {
		kciCp := *kci
		kciCp.privk = nil
		cp.Keychain[gid] = &kciCp
	}
	return &cp
}

// Initialized reports whether the three crypto fields required to
// participate in any crypto operation are all present (spec.md §3).
func (u *User) Initialized() bool {
	return !u.KDFParams.Salt.Empty() && !u.Pubk.Empty() && !u.EncryptedPrivk.Empty()
}

// Unlocked reports whether the user's private key is currently decrypted
// in memory.
func (u *User) Unlocked() bool {
	return u.privk != nil
}

// Privk exposes the decrypted private keypair. Only valid while Unlocked.
func (u *User) Privk() *crypto.KeyPair {
	return u.privk
}

// Allowed implements the authorization predicate from spec.md §4.3:
// allowed?(user, req) = (status=active ∨ status=admin) ∨ (status=new ∧ req=user_activate).
func (u *User) Allowed(requestType string) bool {
	switch u.Status {
	case StatusActive, StatusAdmin:
		return true
	case StatusNew:
		return requestType == "user_activate"
	default:
		return false
	}
}

// SecretKey implements User.secret_key(password) (spec.md §4.2): if the
// user is not initialized, reset_password runs first (the only path
// DESIGN NOTES §9 permits for reset_password), then the secret key is
// derived from the (possibly just-written) kdf_params.
func (u *User) SecretKey(password string) (*crypto.SecretKey, error) {
	if !u.Initialized() {
		if err := u.ResetPassword(password); err != nil {
			return nil, err
		}
	}
	return crypto.DeriveKey(password, &u.KDFParams)
}

// Unlock implements User.unlock(secret_key) (spec.md §4.2). A no-op if
// already unlocked.
func (u *User) Unlock(secretKey *crypto.SecretKey) error {
	if u.Unlocked() {
		return nil
	}

	plainPriv, err := crypto.OpenSecret(secretKey, u.EncryptedPrivk)
	if err != nil {
		return err
	}
	kp, err := crypto.KeyPairFromPrivate(plainPriv)
	for i := range plainPriv {
		plainPriv[i] = 0
	}
	if err != nil {
		return err
	}
	u.privk = kp

	for _, kci := range u.Keychain {
		if err := kci.unlock(u.privk); err != nil {
			u.Lock()
			return err
		}
	}
	return nil
}

// Encrypt implements User.encrypt(secret_key) (spec.md §4.2): re-seal the
// private key and every keychain item's private key under the given
// secret key / user keypair. Requires the user to currently be unlocked.
func (u *User) Encrypt(secretKey *crypto.SecretKey) error {
	if !u.Unlocked() {
		return kerr.New(kerr.BadKey, "cannot encrypt a locked user")
	}

	sealed, err := crypto.SealSecret(secretKey, crypto.PrivateKeyBytes(u.privk))
	if err != nil {
		return err
	}
	u.EncryptedPrivk = sealed
	u.KDFParams = secretKey.Params

	for _, kci := range u.Keychain {
		if err := kci.seal(u.Pubk); err != nil {
			return err
		}
	}
	u.Dirty = true
	return nil
}

// Lock implements User.lock(): clear privk and every keychain item's
// privk. Always safe to call, including on an already-locked user.
func (u *User) Lock() {
	if u.privk != nil {
		u.privk.Zero()
		u.privk = nil
	}
	for _, kci := range u.Keychain {
		kci.lock()
	}
}

// ResetPassword implements User.reset_password(password) (spec.md §4.2):
// generates a fresh user keypair, derives a new secret key, stores new
// kdf_params, re-seals, and empties the keychain. DESIGN NOTES §9
// restricts this method to the initialization path only; callers on an
// already-initialized user must use ChangePassword instead.
func (u *User) ResetPassword(password string) error {
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	secretKey, err := crypto.DeriveKey(password, nil)
	if err != nil {
		return err
	}

	sealed, err := crypto.SealSecret(secretKey, crypto.PrivateKeyBytes(kp))
	if err != nil {
		return err
	}

	u.Pubk = crypto.PublicKeyOf(kp)
	u.EncryptedPrivk = sealed
	u.KDFParams = secretKey.Params
	u.Keychain = map[string]*KeychainItem{}
	u.privk = kp
	u.Dirty = true
	return nil
}

// ChangePassword implements User.change_password(old, new) (spec.md
// §4.2): unlock with the old password's derived key, then re-seal
// (encrypt) under a freshly derived key from the new password. The
// keychain survives because its items were already decrypted by Unlock.
func (u *User) ChangePassword(oldPassword, newPassword string) error {
	oldKey, err := crypto.DeriveKey(oldPassword, &u.KDFParams)
	if err != nil {
		return err
	}
	if err := u.Unlock(oldKey); err != nil {
		return err
	}
	newKey, err := crypto.DeriveKey(newPassword, nil)
	if err != nil {
		return err
	}
	return u.Encrypt(newKey)
}

// AddKeychainItem inserts a new group membership into the user's
// keychain. groupPrivk is the plaintext group keypair; this method seals
// it to the user's public key itself.
func (u *User) AddKeychainItem(groupID string, groupPubk armor.PublicKey, groupPrivk *crypto.KeyPair) error {
	if !u.Unlocked() {
		return kerr.New(kerr.BadKey, "cannot grant group membership to a locked user")
	}
	kci := &KeychainItem{
		GroupID:   groupID,
		GroupPubk: groupPubk,
		privk:     groupPrivk,
	}
	if err := kci.seal(u.Pubk); err != nil {
		return err
	}
	u.Keychain[groupID] = kci
	u.Dirty = true
	return nil
}

// RemoveKeychainItem implements the user-side half of group_remove_user:
// drop the keychain entry for groupID, if any.
func (u *User) RemoveKeychainItem(groupID string) {
	if kci, ok := u.Keychain[groupID]; ok {
		kci.lock()
		delete(u.Keychain, groupID)
		u.Dirty = true
	}
}

// ActivationToken is a time-bounded, one-use secret allowing a new user
// to supply their initial passphrase (spec.md §3).
type ActivationToken struct {
	UserID    string
	Token     string
	NotBefore int64
	NotAfter  int64
}

// Valid reports whether the token covers the given instant, per spec.md
// §3: now ∈ [not_before, not_after].
func (t ActivationToken) Valid(now time.Time) bool {
	n := now.Unix()
	return n >= t.NotBefore && n <= t.NotAfter
}
