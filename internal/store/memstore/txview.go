package memstore

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"kstor/internal/model"
	"kstor/internal/store"
)

// txView implements store.Repository against a *data with no locking of
// its own; every call site already holds Store.mu (either Store's own
// exported methods, or the body of a WithTransaction callback).
type txView struct{ d *data }

func (v txView) Close() error { return nil }

func (v txView) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	return fn(ctx, v)
}

func (v txView) CountUsers(ctx context.Context) (int, error) {
	return len(v.d.users), nil
}

func (v txView) CreateUser(ctx context.Context, u *model.User) error {
	if _, exists := v.d.users[u.ID]; exists {
		return store.ErrDuplicateLogin
	}
	for _, other := range v.d.users {
		if other.Login == u.Login {
			return store.ErrDuplicateLogin
		}
	}
	cp := copyUser(u)
	v.d.users[u.ID] = cp
	u.Dirty = false
	return nil
}

func (v txView) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, ok := v.d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := copyUser(u)
	cp.Keychain = v.keychainOf(id)
	return cp, nil
}

func (v txView) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range v.d.users {
		if u.Login == login {
			cp := copyUser(u)
			cp.Keychain = v.keychainOf(u.ID)
			return cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// keychainOf assembles a user's keychain from the group_members join
// table, the authoritative home of keychain rows (spec.md §6's
// group_members schema) rather than any Keychain field stored alongside
// the user row. It mirrors a SQL join across group_members.
func (v txView) keychainOf(userID string) map[string]*model.KeychainItem {
	out := map[string]*model.KeychainItem{}
	for groupID, members := range v.d.members {
		m, ok := members[userID]
		if !ok {
			continue
		}
		cp := *m.kci
		out[groupID] = &cp
	}
	return out
}

// UpdateUser persists every field except Keychain, which is never stored
// on the user row itself: group_add_user/group_remove_user are the only
// writers of membership, through AddGroupMember/RemoveGroupMember.
func (v txView) UpdateUser(ctx context.Context, u *model.User) error {
	if _, ok := v.d.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	cp := copyUser(u)
	cp.Keychain = map[string]*model.KeychainItem{}
	v.d.users[u.ID] = cp
	u.Dirty = false
	return nil
}

func (v txView) CreateGroup(ctx context.Context, g *model.Group) error {
	for _, other := range v.d.groups {
		if other.Name == g.Name {
			return store.ErrDuplicateName
		}
	}
	cp := *g
	v.d.groups[g.ID] = &cp
	v.d.members[g.ID] = map[string]*groupMember{}
	g.Dirty = false
	return nil
}

func (v txView) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	g, ok := v.d.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (v txView) SearchGroups(ctx context.Context, nameGlob string) ([]*model.Group, error) {
	var out []*model.Group
	for _, g := range v.d.groups {
		match, err := filepath.Match(strings.ToLower(nameGlob), strings.ToLower(g.Name))
		if err != nil || (nameGlob != "" && !match) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v txView) UpdateGroup(ctx context.Context, g *model.Group) error {
	if _, ok := v.d.groups[g.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *g
	v.d.groups[g.ID] = &cp
	g.Dirty = false
	return nil
}

func (v txView) DeleteGroup(ctx context.Context, id string) error {
	if _, ok := v.d.groups[id]; !ok {
		return store.ErrNotFound
	}
	if len(v.d.members[id]) > 0 {
		return store.ErrGroupHasMembers
	}
	delete(v.d.groups, id)
	delete(v.d.members, id)
	return nil
}

func (v txView) GroupMembers(ctx context.Context, groupID string) ([]*model.User, error) {
	var out []*model.User
	for _, m := range v.d.members[groupID] {
		if u, ok := v.d.users[m.userID]; ok {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out, nil
}

func (v txView) AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error {
	if _, ok := v.d.groups[kci.GroupID]; !ok {
		return store.ErrNotFound
	}
	if v.d.members[kci.GroupID] == nil {
		v.d.members[kci.GroupID] = map[string]*groupMember{}
	}
	cp := model.KeychainItem{GroupID: kci.GroupID, GroupPubk: kci.GroupPubk, EncryptedPrivk: kci.EncryptedPrivk}
	v.d.members[kci.GroupID][userID] = &groupMember{userID: userID, kci: &cp}
	return nil
}

func (v txView) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	if v.d.members[groupID] != nil {
		delete(v.d.members[groupID], userID)
	}
	return nil
}

func (v txView) CreateSecret(ctx context.Context, sec *model.Secret, values []*model.SecretValue) error {
	cp := *sec
	v.d.secrets[sec.ID] = &cp
	v.d.values[sec.ID] = map[string]*model.SecretValue{}
	for _, sv := range values {
		svc := *sv
		v.d.values[sec.ID][sv.GroupID] = &svc
	}
	sec.Dirty = false
	return nil
}

func (v txView) groupsOf(userID string) []string {
	var out []string
	for gid, members := range v.d.members {
		if _, ok := members[userID]; ok {
			out = append(out, gid)
		}
	}
	return out
}

func (v txView) GetSecretValue(ctx context.Context, secretID string, memberOf []string) (*model.Secret, *model.SecretValue, error) {
	sec, ok := v.d.secrets[secretID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	byGroup := v.d.values[secretID]
	var chosenGID string
	for _, gid := range memberOf {
		if _, ok := byGroup[gid]; ok {
			if chosenGID == "" || gid < chosenGID {
				chosenGID = gid
			}
		}
	}
	if chosenGID == "" {
		return nil, nil, store.ErrNotFound
	}
	sv := *byGroup[chosenGID]
	secCp := *sec
	secCp.GroupID = chosenGID
	return &secCp, &sv, nil
}

func (v txView) SearchSecrets(ctx context.Context, memberOf []string) ([]*model.Secret, []*model.SecretValue, error) {
	member := map[string]bool{}
	for _, g := range memberOf {
		member[g] = true
	}
	if len(member) == 0 {
		return nil, nil, nil
	}

	var secIDs []string
	for id := range v.d.secrets {
		secIDs = append(secIDs, id)
	}
	sort.Strings(secIDs)

	var secs []*model.Secret
	var svs []*model.SecretValue
	for _, id := range secIDs {
		byGroup := v.d.values[id]
		var groupIDs []string
		for gid := range byGroup {
			if member[gid] {
				groupIDs = append(groupIDs, gid)
			}
		}
		if len(groupIDs) == 0 {
			continue
		}
		sort.Strings(groupIDs)
		chosen := groupIDs[0]

		secCp := *v.d.secrets[id]
		secCp.GroupID = chosen
		svCp := *byGroup[chosen]
		secs = append(secs, &secCp)
		svs = append(svs, &svCp)
	}
	return secs, svs, nil
}

func (v txView) SecretGroups(ctx context.Context, secretID string) ([]*model.Group, error) {
	byGroup := v.d.values[secretID]
	var out []*model.Group
	var gids []string
	for gid := range byGroup {
		gids = append(gids, gid)
	}
	sort.Strings(gids)
	for _, gid := range gids {
		if g, ok := v.d.groups[gid]; ok {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (v txView) UpdateSecretAuthor(ctx context.Context, secretID string, valueAuthorID, metaAuthorID *string) error {
	sec, ok := v.d.secrets[secretID]
	if !ok {
		return store.ErrNotFound
	}
	if valueAuthorID != nil {
		sec.ValueAuthorID = *valueAuthorID
	}
	if metaAuthorID != nil {
		sec.MetaAuthorID = *metaAuthorID
	}
	return nil
}

func (v txView) PutSecretValue(ctx context.Context, sv *model.SecretValue) error {
	if v.d.values[sv.SecretID] == nil {
		return store.ErrNotFound
	}
	cp := *sv
	v.d.values[sv.SecretID][sv.GroupID] = &cp
	return nil
}

func (v txView) DeleteSecret(ctx context.Context, secretID string) error {
	if _, ok := v.d.secrets[secretID]; !ok {
		return store.ErrNotFound
	}
	delete(v.d.secrets, secretID)
	delete(v.d.values, secretID)
	return nil
}

func (v txView) CreateActivationToken(ctx context.Context, t *model.ActivationToken) error {
	cp := *t
	v.d.activations[t.UserID] = &cp
	return nil
}

func (v txView) GetActivationToken(ctx context.Context, userID string) (*model.ActivationToken, error) {
	t, ok := v.d.activations[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (v txView) DeleteActivationTokens(ctx context.Context, userID string) error {
	delete(v.d.activations, userID)
	return nil
}

// copyUser deep-copies a User's keychain map so store-internal state can
// never alias a caller's mutable User, and strips ephemeral plaintext
// fields: a repository only ever holds sealed material at rest.
func copyUser(u *model.User) *model.User {
	return u.StripEphemeral()
}
