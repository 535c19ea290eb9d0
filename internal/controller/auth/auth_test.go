package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kstor/internal/controller/auth"
	"kstor/internal/model"
	"kstor/internal/session"
	"kstor/internal/store/memstore"
	"kstor/internal/wire"
)

func newSessions() *session.Store {
	return session.New(15*time.Minute, 4*time.Hour)
}

func TestAuthenticateBootstrapsFirstUserAsAdmin(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())

	res, err := a.Authenticate(context.Background(), wire.Request{
		Type: wire.TypePing, Login: "root", Password: "hunter2",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusAdmin, res.User.Status)
	require.NotEmpty(t, res.SessionID)
	require.True(t, res.User.Unlocked())
}

func TestAuthenticateRejectsMissingCredentialsOnBootstrap(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())

	_, err := a.Authenticate(context.Background(), wire.Request{Type: wire.TypePing})
	require.Error(t, err)
}

func TestAuthenticateResolvesExistingSession(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	boot, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	res, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, SessionID: boot.SessionID})
	require.NoError(t, err)
	require.Equal(t, boot.User.ID, res.User.ID)
	require.True(t, res.User.Unlocked())
}

func TestAuthenticateRejectsUnknownSession(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	_, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, wire.Request{Type: wire.TypePing, SessionID: "nonexistent"})
	require.Error(t, err)
}

func TestAuthenticateRejectsRequestWithNeitherSessionNorCredentials(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	_, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, wire.Request{Type: wire.TypeGroupGet})
	require.Error(t, err)
}

func TestAuthenticateNewUserForbiddenUntilActivated(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	_, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	pending := model.NewUser(model.NewID(), "newhire", "New Hire", model.StatusNew)
	require.NoError(t, repo.CreateUser(ctx, pending))

	_, err = a.Authenticate(ctx, wire.Request{
		Type: wire.TypeGroupGet, Login: "newhire", Password: "whatever",
	})
	require.Error(t, err)
}

func TestAuthenticateActivatesNewUserWithValidToken(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	_, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	pending := model.NewUser(model.NewID(), "newhire", "New Hire", model.StatusNew)
	require.NoError(t, repo.CreateUser(ctx, pending))
	require.NoError(t, repo.CreateActivationToken(ctx, &model.ActivationToken{
		UserID:    pending.ID,
		Token:     "irrelevant-to-the-wire-protocol",
		NotBefore: time.Now().Add(-time.Minute).Unix(),
		NotAfter:  time.Now().Add(time.Hour).Unix(),
	}))

	res, err := a.Authenticate(ctx, wire.Request{
		Type: wire.TypeUserActivate, Login: "newhire", Password: "new-passphrase",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, res.User.Status)
	require.NotEmpty(t, res.SessionID)

	stored, err := repo.GetUserByLogin(ctx, "newhire")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, stored.Status)

	_, err = repo.GetActivationToken(ctx, pending.ID)
	require.Error(t, err)
}

func TestAuthenticateActivateRejectsExpiredToken(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	_, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	pending := model.NewUser(model.NewID(), "newhire", "New Hire", model.StatusNew)
	require.NoError(t, repo.CreateUser(ctx, pending))
	require.NoError(t, repo.CreateActivationToken(ctx, &model.ActivationToken{
		UserID:    pending.ID,
		Token:     "expired",
		NotBefore: time.Now().Add(-2 * time.Hour).Unix(),
		NotAfter:  time.Now().Add(-time.Hour).Unix(),
	}))

	_, err = a.Authenticate(ctx, wire.Request{
		Type: wire.TypeUserActivate, Login: "newhire", Password: "new-passphrase",
	})
	require.Error(t, err)
}

func TestRotateSessionIssuesNewSessionID(t *testing.T) {
	repo := memstore.New()
	defer repo.Close()
	a := auth.New(repo, newSessions())
	ctx := context.Background()

	boot, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, Login: "root", Password: "hunter2"})
	require.NoError(t, err)

	newKey, err := boot.User.SecretKey("new-passphrase")
	require.NoError(t, err)

	newID := a.RotateSession(boot.SessionID, boot.User.ID, newKey)
	require.NotEmpty(t, newID)
	require.NotEqual(t, boot.SessionID, newID)

	_, err = a.Authenticate(ctx, wire.Request{Type: wire.TypePing, SessionID: boot.SessionID})
	require.Error(t, err)

	res, err := a.Authenticate(ctx, wire.Request{Type: wire.TypePing, SessionID: newID})
	require.NoError(t, err)
	require.Equal(t, boot.User.ID, res.User.ID)
}
