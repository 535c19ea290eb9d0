// Package secret implements the secret controller operations described
// by spec.md §4.4: create, search, unlock, update-metadata,
// update-value, delete, and the group-fan-out re-encryption they imply.
package secret

import (
	"context"
	"encoding/json"

	"kstor/internal/armor"
	"kstor/internal/crypto"
	"kstor/internal/kerr"
	"kstor/internal/model"
	"kstor/internal/store"
)

type Controller struct {
	Repo store.Repository
}

func New(repo store.Repository) *Controller {
	return &Controller{Repo: repo}
}

func memberGroupIDs(u *model.User) []string {
	ids := make([]string, 0, len(u.Keychain))
	for gid := range u.Keychain {
		ids = append(ids, gid)
	}
	return ids
}

// Create implements secret_create: seals plaintext and meta separately
// for every target group before any write happens, so a mid-write
// failure leaves nothing half-written (spec.md §4.4's ordering rule).
func (c *Controller) Create(ctx context.Context, u *model.User, groupIDs []string, plaintext []byte, meta model.SecretMeta) (string, error) {
	if len(groupIDs) == 0 {
		return "", kerr.New(kerr.ReqMissingArgs, "group_ids")
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", kerr.Wrap(kerr.CryptoUnspecified, err)
	}

	values := make([]*model.SecretValue, 0, len(groupIDs))
	for _, gid := range groupIDs {
		kci, ok := u.Keychain[gid]
		if !ok || !kci.Unlocked() {
			return "", kerr.New(kerr.StoreUnknownGroup, gid)
		}
		ct, err := crypto.SealPair(kci.GroupPubk, u.Privk(), plaintext)
		if err != nil {
			return "", err
		}
		emeta, err := crypto.SealPair(kci.GroupPubk, u.Privk(), metaBytes)
		if err != nil {
			return "", err
		}
		values = append(values, &model.SecretValue{GroupID: gid, Ciphertext: ct, EncryptedMetadata: emeta})
	}

	sec := &model.Secret{ID: model.NewID(), ValueAuthorID: u.ID, MetaAuthorID: u.ID}
	for _, v := range values {
		v.SecretID = sec.ID
	}
	if err := c.Repo.CreateSecret(ctx, sec, values); err != nil {
		return "", err
	}
	return sec.ID, nil
}

// Candidate is one secret reachable by the searching user, with its
// metadata already decrypted for matching.
type Candidate struct {
	Secret   *model.Secret
	Metadata model.SecretMeta
}

// Search implements secret_search (spec.md §4.4): empty result if the
// keychain is empty; otherwise decrypt every reachable secret's metadata
// through whichever group the repository chose, and keep matches.
func (c *Controller) Search(ctx context.Context, u *model.User, pattern model.SecretMeta) ([]Candidate, error) {
	memberOf := memberGroupIDs(u)
	if len(memberOf) == 0 {
		return nil, nil
	}

	secs, svs, err := c.Repo.SearchSecrets(ctx, memberOf)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for i, sec := range secs {
		sv := svs[i]
		kci := u.Keychain[sec.GroupID]
		if kci == nil || !kci.Unlocked() {
			continue
		}
		metaAuthor, err := c.Repo.GetUser(ctx, sec.MetaAuthorID)
		if err != nil {
			continue
		}
		meta, err := c.unlockMetadataWithAuthor(sv, kci, metaAuthor.Pubk)
		if err != nil {
			continue
		}
		if meta.Match(pattern) {
			out = append(out, Candidate{Secret: sec, Metadata: meta})
		}
	}
	return out, nil
}

// Unlocked is the fully decrypted view of a secret returned by Unlock.
type Unlocked struct {
	Secret      *model.Secret
	Plaintext   []byte
	Metadata    model.SecretMeta
	ValueAuthor *model.User
	MetaAuthor  *model.User
	Groups      []*model.Group
}

// Unlock implements secret_unlock (spec.md §4.4).
func (c *Controller) Unlock(ctx context.Context, u *model.User, secretID string) (*Unlocked, error) {
	memberOf := memberGroupIDs(u)
	sec, sv, err := c.Repo.GetSecretValue(ctx, secretID, memberOf)
	if err != nil {
		return nil, kerr.New(kerr.SecretNotFound, secretID)
	}

	kci := u.Keychain[sec.GroupID]
	if kci == nil || !kci.Unlocked() {
		return nil, kerr.New(kerr.SecretNotFound, secretID)
	}

	valueAuthor, err := c.Repo.GetUser(ctx, sec.ValueAuthorID)
	if err != nil {
		return nil, kerr.New(kerr.StoreUnknownUser, sec.ValueAuthorID)
	}
	metaAuthor, err := c.Repo.GetUser(ctx, sec.MetaAuthorID)
	if err != nil {
		return nil, kerr.New(kerr.StoreUnknownUser, sec.MetaAuthorID)
	}

	plaintext, err := crypto.OpenPair(valueAuthor.Pubk, kci.Privk(), sv.Ciphertext)
	if err != nil {
		return nil, err
	}
	meta, err := c.unlockMetadataWithAuthor(sv, kci, metaAuthor.Pubk)
	if err != nil {
		return nil, err
	}

	groups, err := c.Repo.SecretGroups(ctx, secretID)
	if err != nil {
		return nil, err
	}

	return &Unlocked{
		Secret:      sec,
		Plaintext:   plaintext,
		Metadata:    meta,
		ValueAuthor: valueAuthor,
		MetaAuthor:  metaAuthor,
		Groups:      groups,
	}, nil
}

func (c *Controller) unlockMetadataWithAuthor(sv *model.SecretValue, kci *model.KeychainItem, authorPub armor.PublicKey) (model.SecretMeta, error) {
	raw, err := crypto.OpenPair(authorPub, kci.Privk(), sv.EncryptedMetadata)
	if err != nil {
		return model.SecretMeta{}, err
	}
	var meta model.SecretMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return model.SecretMeta{}, kerr.Wrap(kerr.CryptoUnspecified, err)
	}
	return meta, nil
}

// UpdateMeta implements secret_update_meta (spec.md §4.4): decrypt
// existing metadata, merge, then re-seal for every group currently
// sharing the secret.
func (c *Controller) UpdateMeta(ctx context.Context, u *model.User, secretID string, partial model.SecretMeta) error {
	memberOf := memberGroupIDs(u)
	sec, sv, err := c.Repo.GetSecretValue(ctx, secretID, memberOf)
	if err != nil {
		return kerr.New(kerr.SecretNotFound, secretID)
	}
	kci := u.Keychain[sec.GroupID]
	if kci == nil || !kci.Unlocked() {
		return kerr.New(kerr.SecretNotFound, secretID)
	}

	metaAuthor, err := c.Repo.GetUser(ctx, sec.MetaAuthorID)
	if err != nil {
		return kerr.New(kerr.StoreUnknownUser, sec.MetaAuthorID)
	}
	current, err := c.unlockMetadataWithAuthor(sv, kci, metaAuthor.Pubk)
	if err != nil {
		return err
	}
	merged := current.Merge(partial)
	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return kerr.Wrap(kerr.CryptoUnspecified, err)
	}

	groups, err := c.Repo.SecretGroups(ctx, secretID)
	if err != nil {
		return err
	}
	if err := c.reseal(ctx, u, secretID, groups, nil, mergedBytes); err != nil {
		return err
	}

	valueAuthor := sec.ValueAuthorID
	return c.Repo.UpdateSecretAuthor(ctx, secretID, &valueAuthor, strPtr(u.ID))
}

// UpdateValue implements secret_update_value (spec.md §4.4): symmetrical
// to UpdateMeta but re-seals the ciphertext instead.
func (c *Controller) UpdateValue(ctx context.Context, u *model.User, secretID string, plaintext []byte) error {
	memberOf := memberGroupIDs(u)
	sec, _, err := c.Repo.GetSecretValue(ctx, secretID, memberOf)
	if err != nil {
		return kerr.New(kerr.SecretNotFound, secretID)
	}
	kci := u.Keychain[sec.GroupID]
	if kci == nil || !kci.Unlocked() {
		return kerr.New(kerr.SecretNotFound, secretID)
	}

	groups, err := c.Repo.SecretGroups(ctx, secretID)
	if err != nil {
		return err
	}
	if err := c.reseal(ctx, u, secretID, groups, plaintext, nil); err != nil {
		return err
	}

	metaAuthor := sec.MetaAuthorID
	return c.Repo.UpdateSecretAuthor(ctx, secretID, strPtr(u.ID), &metaAuthor)
}

// reseal re-encrypts plaintext and/or metaBytes (whichever is non-nil)
// for every group sharing the secret, overwriting the corresponding
// secret_values rows. seal_pair(g.pubk, user.privk, …) (spec.md §4.4)
// needs the group's public key, not the caller's membership in it, so
// this loops over every sharing group regardless of whether the caller
// holds a keychain entry for it. When one of plaintext/metaBytes is
// nil, the existing sealed copy for that field is carried over
// unchanged.
func (c *Controller) reseal(ctx context.Context, u *model.User, secretID string, groups []*model.Group, plaintext, metaBytes []byte) error {
	for _, g := range groups {
		sv := &model.SecretValue{SecretID: secretID, GroupID: g.ID}

		if plaintext != nil {
			ct, err := crypto.SealPair(g.Pubk, u.Privk(), plaintext)
			if err != nil {
				return err
			}
			sv.Ciphertext = ct
		} else {
			existingSec, existingSV, err := c.Repo.GetSecretValue(ctx, secretID, []string{g.ID})
			if err != nil {
				return err
			}
			_ = existingSec
			sv.Ciphertext = existingSV.Ciphertext
		}

		if metaBytes != nil {
			emeta, err := crypto.SealPair(g.Pubk, u.Privk(), metaBytes)
			if err != nil {
				return err
			}
			sv.EncryptedMetadata = emeta
		} else {
			existingSec, existingSV, err := c.Repo.GetSecretValue(ctx, secretID, []string{g.ID})
			if err != nil {
				return err
			}
			_ = existingSec
			sv.EncryptedMetadata = existingSV.EncryptedMetadata
		}

		if err := c.Repo.PutSecretValue(ctx, sv); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements secret_delete (spec.md §4.4).
func (c *Controller) Delete(ctx context.Context, u *model.User, secretID string) error {
	memberOf := memberGroupIDs(u)
	_, _, err := c.Repo.GetSecretValue(ctx, secretID, memberOf)
	if err != nil {
		return kerr.New(kerr.SecretNotFound, secretID)
	}
	return c.Repo.DeleteSecret(ctx, secretID)
}

func strPtr(s string) *string { return &s }
