package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kstor/internal/model"
	"kstor/internal/store"
	"kstor/internal/store/sqlstore"
)

func open(t *testing.T) *sqlstore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kstor.db")
	s, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	u := model.NewUser(model.NewID(), "alice", "Alice", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.Name, got.Name)
	require.Empty(t, got.Keychain)

	_, err = s.GetUserByLogin(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserRejectsDuplicateLogin(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	u1 := model.NewUser(model.NewID(), "bob", "Bob", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, u1))

	u2 := model.NewUser(model.NewID(), "bob", "Bob Two", model.StatusAdmin)
	err := s.CreateUser(ctx, u2)
	require.ErrorIs(t, err, store.ErrDuplicateLogin)
}

func TestGroupMembershipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	u := model.NewUser(model.NewID(), "carol", "Carol", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, u))

	g := model.NewGroup(model.NewID(), "ops", "")
	require.NoError(t, s.CreateGroup(ctx, g))

	require.NoError(t, s.AddGroupMember(ctx, u.ID, &model.KeychainItem{
		GroupID:        g.ID,
		EncryptedPrivk: "ciphertext",
	}))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Contains(t, got.Keychain, g.ID)
	require.Equal(t, "ciphertext", got.Keychain[g.ID].EncryptedPrivk.String())

	members, err := s.GroupMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, u.ID, members[0].ID)
}

func TestDeleteGroupRefusedWithMembers(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	u := model.NewUser(model.NewID(), "dave", "Dave", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, u))

	g := model.NewGroup(model.NewID(), "finance", "")
	require.NoError(t, s.CreateGroup(ctx, g))
	require.NoError(t, s.AddGroupMember(ctx, u.ID, &model.KeychainItem{GroupID: g.ID}))

	err := s.DeleteGroup(ctx, g.ID)
	require.ErrorIs(t, err, store.ErrGroupHasMembers)

	require.NoError(t, s.RemoveGroupMember(ctx, g.ID, u.ID))
	require.NoError(t, s.DeleteGroup(ctx, g.ID))
}

func TestSearchGroupsGlob(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	for _, name := range []string{"ops-prod", "ops-staging", "finance"} {
		require.NoError(t, s.CreateGroup(ctx, model.NewGroup(model.NewID(), name, "")))
	}

	got, err := s.SearchGroups(ctx, "ops-*")
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.SearchGroups(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = s.SearchGroups(ctx, "financ?")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSecretValueVisibleOnlyToMemberGroups(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	author := model.NewUser(model.NewID(), "erin", "Erin", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, author))

	g1 := model.NewGroup(model.NewID(), "g1", "")
	g2 := model.NewGroup(model.NewID(), "g2", "")
	require.NoError(t, s.CreateGroup(ctx, g1))
	require.NoError(t, s.CreateGroup(ctx, g2))

	sec := &model.Secret{ID: model.NewID(), ValueAuthorID: author.ID, MetaAuthorID: author.ID}
	values := []*model.SecretValue{
		{SecretID: sec.ID, GroupID: g1.ID, Ciphertext: "ct-g1"},
		{SecretID: sec.ID, GroupID: g2.ID, Ciphertext: "ct-g2"},
	}
	require.NoError(t, s.CreateSecret(ctx, sec, values))

	_, sv, err := s.GetSecretValue(ctx, sec.ID, []string{g1.ID})
	require.NoError(t, err)
	require.Equal(t, "ct-g1", sv.Ciphertext.String())

	_, _, err = s.GetSecretValue(ctx, sec.ID, []string{"not-a-member"})
	require.ErrorIs(t, err, store.ErrNotFound)

	groups, err := s.SecretGroups(ctx, sec.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
}

func TestSearchSecretsRequiresMembership(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	author := model.NewUser(model.NewID(), "frank", "Frank", model.StatusAdmin)
	require.NoError(t, s.CreateUser(ctx, author))
	g := model.NewGroup(model.NewID(), "g1", "")
	require.NoError(t, s.CreateGroup(ctx, g))

	sec := &model.Secret{ID: model.NewID(), ValueAuthorID: author.ID, MetaAuthorID: author.ID}
	values := []*model.SecretValue{{SecretID: sec.ID, GroupID: g.ID}}
	require.NoError(t, s.CreateSecret(ctx, sec, values))

	secs, svs, err := s.SearchSecrets(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, secs)
	require.Empty(t, svs)

	secs, svs, err = s.SearchSecrets(ctx, []string{g.ID})
	require.NoError(t, err)
	require.Len(t, secs, 1)
	require.Len(t, svs, 1)
}

func TestActivationTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	u := model.NewUser(model.NewID(), "gina", "Gina", model.StatusNew)
	require.NoError(t, s.CreateUser(ctx, u))

	tok := &model.ActivationToken{UserID: u.ID, Token: "tok123", NotBefore: 100, NotAfter: 200}
	require.NoError(t, s.CreateActivationToken(ctx, tok))

	got, err := s.GetActivationToken(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "tok123", got.Token)

	require.NoError(t, s.DeleteActivationTokens(ctx, u.ID))
	_, err = s.GetActivationToken(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	err := s.WithTransaction(ctx, func(ctx context.Context, tx store.Repository) error {
		u := model.NewUser(model.NewID(), "henry", "Henry", model.StatusAdmin)
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		return store.ErrNotFound
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetUserByLogin(ctx, "henry")
	require.ErrorIs(t, err, store.ErrNotFound)
}
