// Package admin implements the group and user administration controller
// (spec.md §4.5): group lifecycle, membership changes, user creation and
// activation-token issuance, and the caller's change of their own password.
package admin

import (
	"context"
	"time"

	"kstor/internal/crypto"
	"kstor/internal/kerr"
	"kstor/internal/model"
	"kstor/internal/store"
)

const defaultActivationLifespan = 7 * 24 * time.Hour

type Controller struct {
	Repo store.Repository
	Now  func() time.Time
}

func New(repo store.Repository) *Controller {
	return &Controller{Repo: repo, Now: time.Now}
}

func requireAdmin(u *model.User) error {
	if u.Status != model.StatusAdmin {
		return kerr.New(kerr.AuthForbidden)
	}
	return nil
}

// GroupCreate implements group_create (spec.md §4.5): admin only. The
// creating user becomes the group's first member.
func (c *Controller) GroupCreate(ctx context.Context, u *model.User, name string) (*model.Group, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, kerr.New(kerr.ReqMissingArgs, "name")
	}

	groupKP, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	g := model.NewGroup(model.NewID(), name, crypto.PublicKeyOf(groupKP))
	if err := c.Repo.CreateGroup(ctx, g); err != nil {
		return nil, err
	}

	if err := u.AddKeychainItem(g.ID, g.Pubk, groupKP); err != nil {
		return nil, err
	}
	if err := c.Repo.AddGroupMember(ctx, u.ID, u.Keychain[g.ID]); err != nil {
		return nil, err
	}
	if err := c.Repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	return g, nil
}

func (c *Controller) GroupRename(ctx context.Context, u *model.User, groupID, newName string) (*model.Group, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	g, err := c.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, kerr.New(kerr.StoreUnknownGroup, groupID)
	}
	g.Name = newName
	g.Dirty = true
	if err := c.Repo.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GroupDelete implements group_delete (spec.md §4.5): refused if the
// group has members other than the caller.
func (c *Controller) GroupDelete(ctx context.Context, u *model.User, groupID string) error {
	if err := requireAdmin(u); err != nil {
		return err
	}
	members, err := c.Repo.GroupMembers(ctx, groupID)
	if err != nil {
		return kerr.New(kerr.StoreUnknownGroup, groupID)
	}
	for _, m := range members {
		if m.ID != u.ID {
			return kerr.New(kerr.StoreGroupHasMembers, groupID)
		}
	}
	// Drop the caller's own membership first so DeleteGroup's
	// has-members check (shared with the direct repository path) sees an
	// empty group.
	if err := c.Repo.RemoveGroupMember(ctx, groupID, u.ID); err != nil {
		return err
	}
	u.RemoveKeychainItem(groupID)
	if err := c.Repo.UpdateUser(ctx, u); err != nil {
		return err
	}
	return c.Repo.DeleteGroup(ctx, groupID)
}

func (c *Controller) GroupSearch(ctx context.Context, u *model.User, nameGlob string) ([]*model.Group, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	return c.Repo.SearchGroups(ctx, nameGlob)
}

type GroupInfo struct {
	Group   *model.Group
	Members []*model.User
}

func (c *Controller) GroupGet(ctx context.Context, u *model.User, groupID string) (*GroupInfo, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	g, err := c.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, kerr.New(kerr.StoreUnknownGroup, groupID)
	}
	members, err := c.Repo.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{Group: g, Members: members}, nil
}

// GroupAddUser implements group_add_user (spec.md §4.5): the caller must
// already be a member (they hold the group private key) to grant it to
// someone else. Per DESIGN NOTES §9's open question, the newly granted
// keychain entry is persisted for targetUserID but never merged into the
// in-flight caller's own User object (there is nothing to merge into: the
// caller grants a key they already hold to a different user).
func (c *Controller) GroupAddUser(ctx context.Context, caller *model.User, targetUserID, groupID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	callerKCI, ok := caller.Keychain[groupID]
	if !ok || !callerKCI.Unlocked() {
		return kerr.New(kerr.StoreUnknownGroupPrivk, groupID)
	}

	target, err := c.Repo.GetUser(ctx, targetUserID)
	if err != nil {
		return kerr.New(kerr.StoreUnknownUser, targetUserID)
	}
	if target.Pubk.Empty() {
		return kerr.New(kerr.StoreUnknownUser, targetUserID)
	}

	sealed, err := crypto.SealPair(target.Pubk, callerKCI.Privk(), crypto.PrivateKeyBytes(callerKCI.Privk()))
	if err != nil {
		return err
	}
	kci := &model.KeychainItem{GroupID: groupID, GroupPubk: callerKCI.GroupPubk, EncryptedPrivk: sealed}
	return c.Repo.AddGroupMember(ctx, targetUserID, kci)
}

// GroupRemoveUser implements group_remove_user (spec.md §4.5).
func (c *Controller) GroupRemoveUser(ctx context.Context, caller *model.User, groupID, userID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := c.Repo.RemoveGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	if userID == caller.ID {
		caller.RemoveKeychainItem(groupID)
		return c.Repo.UpdateUser(ctx, caller)
	}
	return nil
}

// UserCreate implements user_create (spec.md §4.5): a new user with
// empty crypto data and no keychain, plus a fresh activation token.
func (c *Controller) UserCreate(ctx context.Context, caller *model.User, login, name string, tokenLifespan time.Duration) (*model.User, *model.ActivationToken, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, nil, err
	}
	if login == "" {
		return nil, nil, kerr.New(kerr.ReqMissingArgs, "login")
	}
	if tokenLifespan <= 0 {
		tokenLifespan = defaultActivationLifespan
	}

	u := model.NewUser(model.NewID(), login, name, model.StatusNew)
	if err := c.Repo.CreateUser(ctx, u); err != nil {
		return nil, nil, err
	}

	now := c.Now()
	token := &model.ActivationToken{
		UserID:    u.ID,
		Token:     model.NewToken(32),
		NotBefore: now.Unix(),
		NotAfter:  now.Add(tokenLifespan).Unix(),
	}
	if err := c.Repo.CreateActivationToken(ctx, token); err != nil {
		return nil, nil, err
	}

	return u, token, nil
}

// UserChangePassword implements user_change_password (spec.md §4.5):
// re-seal the user's own crypto data under a freshly derived key. Any
// active/admin user may change their own password (no admin gate: the
// caller always targets themselves).
func (c *Controller) UserChangePassword(ctx context.Context, u *model.User, newPassword string) (*crypto.SecretKey, error) {
	newKey, err := crypto.DeriveKey(newPassword, nil)
	if err != nil {
		return nil, err
	}
	if err := u.Encrypt(newKey); err != nil {
		return nil, err
	}
	if err := c.Repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return newKey, nil
}
