package secret_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kstor/internal/controller/admin"
	"kstor/internal/controller/secret"
	"kstor/internal/model"
	"kstor/internal/store/memstore"
)

// bootstrapUser creates and unlocks a fresh admin user directly against
// repo, bypassing the auth controller (which this package doesn't depend
// on) since these tests only exercise secret sharing/fan-out.
func bootstrapUser(t *testing.T, repo *memstore.Store, login string) *model.User {
	t.Helper()
	u := model.NewUser(model.NewID(), login, login, model.StatusAdmin)
	require.NoError(t, u.ResetPassword("hunter2"))
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func makeGroup(t *testing.T, repo *memstore.Store, a *admin.Controller, owner *model.User, name string) *model.Group {
	t.Helper()
	g, err := a.GroupCreate(context.Background(), owner, name)
	require.NoError(t, err)
	return g
}

func TestCreateAndUnlockSingleGroup(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	g := makeGroup(t, repo, a, owner, "ops")

	meta := model.SecretMeta{App: "password-manager", Server: "github.com"}
	id, err := sc.Create(ctx, owner, []string{g.ID}, []byte("s3cr3t"), meta)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	unlocked, err := sc.Unlock(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, []byte("s3cr3t"), unlocked.Plaintext)
	require.Equal(t, "github.com", unlocked.Metadata.Server)
	require.Equal(t, owner.ID, unlocked.ValueAuthor.ID)
	require.Equal(t, owner.ID, unlocked.MetaAuthor.ID)
}

func TestSearchMatchesGlobAndRequiresMembership(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	outsider := bootstrapUser(t, repo, "mallory")
	g := makeGroup(t, repo, a, owner, "ops")

	_, err := sc.Create(ctx, owner, []string{g.ID}, []byte("v1"), model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)
	_, err = sc.Create(ctx, owner, []string{g.ID}, []byte("v2"), model.SecretMeta{Server: "gitlab.com"})
	require.NoError(t, err)

	found, err := sc.Search(ctx, owner, model.SecretMeta{Server: "git*"})
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = sc.Search(ctx, owner, model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	// Mallory is not a member of any group, so search returns nothing
	// even though the secrets exist.
	none, err := sc.Search(ctx, outsider, model.SecretMeta{Server: "*"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestUnlockFailsForNonMember(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	outsider := bootstrapUser(t, repo, "mallory")
	g := makeGroup(t, repo, a, owner, "ops")

	id, err := sc.Create(ctx, owner, []string{g.ID}, []byte("v1"), model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)

	_, err = sc.Unlock(ctx, outsider, id)
	require.Error(t, err)
}

func TestUpdateValueReencryptsForEveryGroup(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	second := bootstrapUser(t, repo, "bob")
	g1 := makeGroup(t, repo, a, owner, "ops")
	g2 := makeGroup(t, repo, a, owner, "eng")
	require.NoError(t, a.GroupAddUser(ctx, owner, second.ID, g2.ID))

	id, err := sc.Create(ctx, owner, []string{g1.ID, g2.ID}, []byte("v1"), model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)

	require.NoError(t, sc.UpdateValue(ctx, owner, id, []byte("v2")))

	unlocked, err := sc.Unlock(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), unlocked.Plaintext)
	require.Equal(t, owner.ID, unlocked.ValueAuthor.ID)

	// Bob reaches the secret through g2 and must see the same, freshly
	// re-sealed plaintext, authenticated against the true author (owner)
	// and not against g2's own pubk.
	second, err = repo.GetUser(ctx, second.ID)
	require.NoError(t, err)
	sk, err := second.SecretKey("hunter2")
	require.NoError(t, err)
	require.NoError(t, second.Unlock(sk))

	unlockedByBob, err := sc.Unlock(ctx, second, id)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), unlockedByBob.Plaintext)
}

func TestUpdateValueReencryptsForGroupsCallerIsNotAMemberOf(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	carol := bootstrapUser(t, repo, "carol")
	bob := bootstrapUser(t, repo, "bob")
	g1 := makeGroup(t, repo, a, owner, "ops")
	g2 := makeGroup(t, repo, a, owner, "eng")
	require.NoError(t, a.GroupAddUser(ctx, owner, carol.ID, g1.ID))
	require.NoError(t, a.GroupAddUser(ctx, owner, bob.ID, g2.ID))

	id, err := sc.Create(ctx, owner, []string{g1.ID, g2.ID}, []byte("v1"), model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)

	carol, err = repo.GetUser(ctx, carol.ID)
	require.NoError(t, err)
	sk, err := carol.SecretKey("hunter2")
	require.NoError(t, err)
	require.NoError(t, carol.Unlock(sk))
	// carol only holds a keychain entry for g1, not g2, yet the update
	// must re-seal both groups' copies so g2's members still recover the
	// newly written value (spec.md §8).
	require.NotContains(t, carol.Keychain, g2.ID)

	require.NoError(t, sc.UpdateValue(ctx, carol, id, []byte("v2")))

	bob, err = repo.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	sk, err = bob.SecretKey("hunter2")
	require.NoError(t, err)
	require.NoError(t, bob.Unlock(sk))

	unlockedByBob, err := sc.Unlock(ctx, bob, id)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), unlockedByBob.Plaintext)
	require.Equal(t, carol.ID, unlockedByBob.ValueAuthor.ID)
}

func TestUpdateMetaMergesAndReencrypts(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	g := makeGroup(t, repo, a, owner, "ops")

	id, err := sc.Create(ctx, owner, []string{g.ID}, []byte("v1"), model.SecretMeta{Server: "github.com", App: "password"})
	require.NoError(t, err)

	require.NoError(t, sc.UpdateMeta(ctx, owner, id, model.SecretMeta{App: "token"}))

	unlocked, err := sc.Unlock(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, "github.com", unlocked.Metadata.Server)
	require.Equal(t, "token", unlocked.Metadata.App)
	require.Equal(t, owner.ID, unlocked.MetaAuthor.ID)
}

func TestDeleteRequiresMembership(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := admin.New(repo)
	sc := secret.New(repo)
	ctx := context.Background()

	owner := bootstrapUser(t, repo, "alice")
	outsider := bootstrapUser(t, repo, "mallory")
	g := makeGroup(t, repo, a, owner, "ops")

	id, err := sc.Create(ctx, owner, []string{g.ID}, []byte("v1"), model.SecretMeta{Server: "github.com"})
	require.NoError(t, err)

	require.Error(t, sc.Delete(ctx, outsider, id))
	require.NoError(t, sc.Delete(ctx, owner, id))

	_, err = sc.Unlock(ctx, owner, id)
	require.Error(t, err)
}
