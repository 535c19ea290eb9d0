// Package store declares the repository boundary (spec.md §6): the
// narrow set of operations a relational backend must provide, kept
// separate from any particular driver the way storage/interface.go
// separates IdentityBackend/AccountBackend/... from their concrete
// implementations.
package store

import (
	"context"
	"errors"

	"kstor/internal/model"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrGroupHasMembers = errors.New("store: group still has members")
	ErrDuplicateLogin  = errors.New("store: login already in use")
	ErrDuplicateName   = errors.New("store: name already in use")
)

// Repository is the full persistence surface the controllers depend on.
// A concrete backend (memstore, sqlstore, pgstore) implements this
// interface; callers never see driver-specific types.
type Repository interface {
	// CountUsers returns the total number of users ever created, used by
	// the authentication controller to decide whether to bootstrap the
	// first admin user (spec.md §4.3).
	CountUsers(ctx context.Context) (int, error)

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error

	CreateGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	SearchGroups(ctx context.Context, nameGlob string) ([]*model.Group, error)
	UpdateGroup(ctx context.Context, g *model.Group) error
	DeleteGroup(ctx context.Context, id string) error
	GroupMembers(ctx context.Context, groupID string) ([]*model.User, error)

	// AddGroupMember persists a new keychain item for userID (the
	// group_members row), per group_create/group_add_user (spec.md §4.5).
	AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error
	// RemoveGroupMember deletes the group_members row for (groupID,
	// userID), per group_remove_user (spec.md §4.5).
	RemoveGroupMember(ctx context.Context, groupID, userID string) error

	CreateSecret(ctx context.Context, s *model.Secret, values []*model.SecretValue) error
	// GetSecretValue fetches the single secret_values row reachable by
	// this user, per secret_unlock (spec.md §4.4): fails ErrNotFound if no
	// group in the user's keychain shares the secret.
	GetSecretValue(ctx context.Context, secretID string, memberOf []string) (*model.Secret, *model.SecretValue, error)
	// SearchSecrets returns one SecretValue per secret reachable through
	// memberOf, choosing the group deterministically by
	// ORDER BY secret_id, group_id (spec.md §4.4).
	SearchSecrets(ctx context.Context, memberOf []string) ([]*model.Secret, []*model.SecretValue, error)
	// SecretGroups lists every group currently sharing a secret, used by
	// update_meta/update_value's re-seal fan-out (spec.md §4.4).
	SecretGroups(ctx context.Context, secretID string) ([]*model.Group, error)
	UpdateSecretAuthor(ctx context.Context, secretID string, valueAuthorID, metaAuthorID *string) error
	PutSecretValue(ctx context.Context, sv *model.SecretValue) error
	DeleteSecret(ctx context.Context, secretID string) error

	CreateActivationToken(ctx context.Context, t *model.ActivationToken) error
	GetActivationToken(ctx context.Context, userID string) (*model.ActivationToken, error)
	DeleteActivationTokens(ctx context.Context, userID string) error

	// WithTransaction runs fn with a Repository bound to a single store
	// transaction (spec.md §4.6): commits on nil error, rolls back
	// otherwise. Implementations that cannot nest transactions pass
	// themselves through unchanged (memstore).
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	Close() error
}
