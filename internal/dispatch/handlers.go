package dispatch

import (
	"context"
	"time"

	"kstor/internal/controller/admin"
	"kstor/internal/controller/secret"
	"kstor/internal/kerr"
	"kstor/internal/model"
	"kstor/internal/store"
	"kstor/internal/wire"
)

// register wires every request type from spec.md §6 to its controller.
func (d *Dispatcher) register() {
	d.add(wire.TypePing, wire.TypePong, handlePing)

	d.add(wire.TypeGroupCreate, wire.TypeGroupCreated, handleGroupCreate)
	d.add(wire.TypeGroupRename, wire.TypeGroupUpdated, handleGroupRename)
	d.add(wire.TypeGroupDelete, wire.TypeGroupDeleted, handleGroupDelete)
	d.add(wire.TypeGroupSearch, wire.TypeGroupList, handleGroupSearch)
	d.add(wire.TypeGroupGet, wire.TypeGroupInfo, handleGroupGet)
	d.add(wire.TypeGroupAddUser, wire.TypeGroupUpdated, handleGroupAddUser)
	d.add(wire.TypeGroupRemoveUser, wire.TypeGroupUpdated, handleGroupRemoveUser)

	d.add(wire.TypeUserCreate, wire.TypeUserCreated, handleUserCreate)
	d.add(wire.TypeUserActivate, wire.TypeUserUpdated, handleUserActivate)
	d.add(wire.TypeUserChangePassword, wire.TypeUserPasswordChanged, d.handleUserChangePassword)

	d.add(wire.TypeSecretCreate, wire.TypeSecretCreated, handleSecretCreate)
	d.add(wire.TypeSecretSearch, wire.TypeSecretList, handleSecretSearch)
	d.add(wire.TypeSecretUnlock, wire.TypeSecretValue, handleSecretUnlock)
	d.add(wire.TypeSecretUpdateMeta, wire.TypeSecretUpdated, handleSecretUpdateMeta)
	d.add(wire.TypeSecretUpdateValue, wire.TypeSecretUpdated, handleSecretUpdateValue)
	d.add(wire.TypeSecretDelete, wire.TypeSecretDeleted, handleSecretDelete)
}

func handlePing(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.PingArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	return wire.PongArgs{Payload: args.Payload}, "", nil
}

func groupSummaryOf(g *model.Group) wire.GroupSummary {
	return wire.GroupSummary{GroupID: g.ID, Name: g.Name}
}

func userSummaryOf(u *model.User) wire.UserSummary {
	return wire.UserSummary{UserID: u.ID, Login: u.Login, Name: u.Name}
}

func handleGroupCreate(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupCreateArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	g, err := admin.New(tx).GroupCreate(ctx, u, args.Name)
	if err != nil {
		return nil, "", err
	}
	return wire.GroupCreatedArgs{GroupID: g.ID, Name: g.Name}, "", nil
}

func handleGroupRename(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupRenameArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	g, err := admin.New(tx).GroupRename(ctx, u, args.GroupID, args.NewName)
	if err != nil {
		return nil, "", err
	}
	return wire.GroupUpdatedArgs{GroupID: g.ID}, "", nil
}

func handleGroupDelete(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupDeleteArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := admin.New(tx).GroupDelete(ctx, u, args.GroupID); err != nil {
		return nil, "", err
	}
	return wire.GroupDeletedArgs{GroupID: args.GroupID}, "", nil
}

func handleGroupSearch(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupSearchArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	groups, err := admin.New(tx).GroupSearch(ctx, u, args.NameGlob)
	if err != nil {
		return nil, "", err
	}
	summaries := make([]wire.GroupSummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, groupSummaryOf(g))
	}
	return wire.GroupListArgs{Groups: summaries}, "", nil
}

func handleGroupGet(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupGetArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	info, err := admin.New(tx).GroupGet(ctx, u, args.GroupID)
	if err != nil {
		return nil, "", err
	}
	members := make([]wire.UserSummary, 0, len(info.Members))
	for _, m := range info.Members {
		members = append(members, userSummaryOf(m))
	}
	return wire.GroupInfoArgs{GroupID: info.Group.ID, Name: info.Group.Name, Members: members}, "", nil
}

func handleGroupAddUser(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupAddUserArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := admin.New(tx).GroupAddUser(ctx, u, args.UserID, args.GroupID); err != nil {
		return nil, "", err
	}
	return wire.GroupUpdatedArgs{GroupID: args.GroupID}, "", nil
}

func handleGroupRemoveUser(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.GroupRemoveUserArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := admin.New(tx).GroupRemoveUser(ctx, u, args.GroupID, args.UserID); err != nil {
		return nil, "", err
	}
	return wire.GroupUpdatedArgs{GroupID: args.GroupID}, "", nil
}

func handleUserCreate(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.UserCreateArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	lifespan := time.Duration(args.TokenLifespanSeconds) * time.Second
	newUser, token, err := admin.New(tx).UserCreate(ctx, u, args.Login, args.Name, lifespan)
	if err != nil {
		return nil, "", err
	}
	return wire.UserCreatedArgs{UserID: newUser.ID, Login: newUser.Login, Token: token.Token}, "", nil
}

// handleUserActivate runs after Authenticate has already performed the
// activation (spec.md §4.5: "user_activate: executed via the
// authentication path"); the handler only has to report it.
func handleUserActivate(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	return wire.UserUpdatedArgs{UserID: u.ID}, "", nil
}

func (d *Dispatcher) handleUserChangePassword(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.UserChangePasswordArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	newKey, err := admin.New(tx).UserChangePassword(ctx, u, args.NewPassword)
	if err != nil {
		return nil, "", err
	}
	newSessionID := d.Auth.RotateSession(sessionID, u.ID, newKey)
	return wire.UserPasswordChangedArgs{UserID: u.ID}, newSessionID, nil
}

func handleSecretCreate(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretCreateArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	id, err := secret.New(tx).Create(ctx, u, args.GroupIDs, []byte(args.Plaintext), args.Meta)
	if err != nil {
		return nil, "", err
	}
	return wire.SecretCreatedArgs{SecretID: id}, "", nil
}

func handleSecretSearch(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretSearchArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	found, err := secret.New(tx).Search(ctx, u, args.Meta)
	if err != nil {
		return nil, "", err
	}
	summaries := make([]wire.SecretSummary, 0, len(found))
	for _, c := range found {
		summaries = append(summaries, wire.SecretSummary{SecretID: c.Secret.ID, Meta: c.Metadata})
	}
	return wire.SecretListArgs{Secrets: summaries}, "", nil
}

func handleSecretUnlock(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretUnlockArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	unlocked, err := secret.New(tx).Unlock(ctx, u, args.SecretID)
	if err != nil {
		return nil, "", err
	}
	groups := make([]wire.GroupSummary, 0, len(unlocked.Groups))
	for _, g := range unlocked.Groups {
		groups = append(groups, groupSummaryOf(g))
	}
	return wire.SecretValueArgs{
		SecretID:    unlocked.Secret.ID,
		Plaintext:   string(unlocked.Plaintext),
		Metadata:    unlocked.Metadata,
		ValueAuthor: userSummaryOf(unlocked.ValueAuthor),
		MetaAuthor:  userSummaryOf(unlocked.MetaAuthor),
		Groups:      groups,
	}, "", nil
}

func handleSecretUpdateMeta(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretUpdateMetaArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := secret.New(tx).UpdateMeta(ctx, u, args.SecretID, args.Meta); err != nil {
		return nil, "", err
	}
	return wire.SecretUpdatedArgs{SecretID: args.SecretID}, "", nil
}

func handleSecretUpdateValue(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretUpdateValueArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := secret.New(tx).UpdateValue(ctx, u, args.SecretID, []byte(args.Plaintext)); err != nil {
		return nil, "", err
	}
	return wire.SecretUpdatedArgs{SecretID: args.SecretID}, "", nil
}

func handleSecretDelete(ctx context.Context, tx store.Repository, u *model.User, sessionID string, req wire.Request) (any, string, error) {
	var args wire.SecretDeleteArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", kerr.New(kerr.MsgInvalid)
	}
	if err := secret.New(tx).Delete(ctx, u, args.SecretID); err != nil {
		return nil, "", err
	}
	return wire.SecretDeletedArgs{SecretID: args.SecretID}, "", nil
}
