// Package auth implements the authentication controller (spec.md §4.3):
// resolving a request to an unlocked User and a session id, bootstrapping
// the first admin user, and handling new-user activation.
package auth

import (
	"context"
	"time"

	"kstor/internal/crypto"
	"kstor/internal/kerr"
	"kstor/internal/model"
	"kstor/internal/session"
	"kstor/internal/store"
	"kstor/internal/wire"
)

// Controller resolves requests to an authenticated, unlocked user.
type Controller struct {
	Repo     store.Repository
	Sessions *session.Store
	Now      func() time.Time
}

func New(repo store.Repository, sessions *session.Store) *Controller {
	return &Controller{Repo: repo, Sessions: sessions, Now: time.Now}
}

// Result is what Authenticate hands back to the dispatcher.
type Result struct {
	User      *model.User
	SessionID string
}

// Authenticate implements spec.md §4.3's three-way branch: first-user
// bootstrap, user_activate, and the ordinary session-or-credentials path.
func (c *Controller) Authenticate(ctx context.Context, req wire.Request) (*Result, error) {
	count, err := c.Repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return c.bootstrapFirstUser(ctx, req)
	}

	if req.Type == wire.TypeUserActivate {
		return c.activate(ctx, req)
	}

	return c.ordinary(ctx, req)
}

func (c *Controller) bootstrapFirstUser(ctx context.Context, req wire.Request) (*Result, error) {
	if !req.HasCredentials() {
		return nil, kerr.New(kerr.AuthMissing)
	}

	u := model.NewUser(model.NewID(), req.Login, req.Login, model.StatusAdmin)
	secretKey, err := u.SecretKey(req.Password)
	if err != nil {
		return nil, err
	}
	if err := u.Unlock(secretKey); err != nil {
		return nil, err
	}
	if err := c.Repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	sess := c.Sessions.Create(u.ID, secretKey)
	return &Result{User: u, SessionID: sess.ID}, nil
}

func (c *Controller) activate(ctx context.Context, req wire.Request) (*Result, error) {
	if !req.HasCredentials() {
		return nil, kerr.New(kerr.AuthMissing)
	}

	u, err := c.Repo.GetUserByLogin(ctx, req.Login)
	if err != nil {
		return nil, kerr.New(kerr.StoreUnknownUser, req.Login)
	}
	if u.Status != model.StatusNew {
		return nil, kerr.New(kerr.AuthForbidden)
	}

	token, err := c.Repo.GetActivationToken(ctx, u.ID)
	if err != nil || !token.Valid(c.Now()) {
		return nil, kerr.New(kerr.AuthForbidden)
	}

	secretKey, err := u.SecretKey(req.Password)
	if err != nil {
		return nil, err
	}
	if err := u.Unlock(secretKey); err != nil {
		return nil, err
	}
	u.Status = model.StatusActive
	u.Dirty = true

	if err := c.Repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	if err := c.Repo.DeleteActivationTokens(ctx, u.ID); err != nil {
		return nil, err
	}

	sess := c.Sessions.Create(u.ID, secretKey)
	return &Result{User: u, SessionID: sess.ID}, nil
}

func (c *Controller) ordinary(ctx context.Context, req wire.Request) (*Result, error) {
	var (
		u         *model.User
		secretKey *crypto.SecretKey
		sessID    string
	)

	if req.HasSession() {
		sess, err := c.Sessions.Get(req.SessionID)
		if err != nil {
			return nil, err
		}
		u, err = c.Repo.GetUser(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
		secretKey = sess.SecretKey
		sessID = sess.ID
	} else if req.HasCredentials() {
		var err error
		u, err = c.Repo.GetUserByLogin(ctx, req.Login)
		if err != nil {
			return nil, kerr.New(kerr.StoreUnknownUser, req.Login)
		}
		secretKey, err = crypto.DeriveKey(req.Password, &u.KDFParams)
		if err != nil {
			return nil, err
		}
		sess := c.Sessions.Create(u.ID, secretKey)
		sessID = sess.ID
	} else {
		// Neither login+password nor session_id: a structurally invalid
		// envelope (spec.md §6), not a domain-specific auth failure.
		return nil, kerr.New(kerr.MsgInvalid)
	}

	if !u.Allowed(req.Type) {
		return nil, kerr.New(kerr.AuthForbidden)
	}

	if err := u.Unlock(secretKey); err != nil {
		return nil, err
	}

	return &Result{User: u, SessionID: sessID}, nil
}

// RotateSession implements the password-change side effect (spec.md
// §4.3): discard the old session, create a new one with the freshly
// derived secret key.
func (c *Controller) RotateSession(oldSessionID, userID string, newSecretKey *crypto.SecretKey) string {
	sess := c.Sessions.Rotate(oldSessionID, userID, newSecretKey)
	return sess.ID
}
