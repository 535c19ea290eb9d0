// Package memstore is an in-memory store.Repository, the test double used
// throughout the controller and dispatcher test suites, the same role
// storage/memory/inmemory.go plays for the teacher's storage.Backend.
package memstore

import (
	"context"
	"sync"

	"kstor/internal/model"
	"kstor/internal/store"
)

type groupMember struct {
	userID string
	kci    *model.KeychainItem
}

// data is the unlocked state; its methods assume the caller already
// holds Store.mu. Store and txView both wrap a *data, the former taking
// the lock itself, the latter relying on an already-held lock from
// WithTransaction.
type data struct {
	users  map[string]*model.User
	groups map[string]*model.Group
	// members maps groupID -> userID -> groupMember, mirroring the
	// group_members join table.
	members map[string]map[string]*groupMember

	secrets map[string]*model.Secret
	values  map[string]map[string]*model.SecretValue // secretID -> groupID -> value

	activations map[string]*model.ActivationToken
}

func newData() *data {
	return &data{
		users:       map[string]*model.User{},
		groups:      map[string]*model.Group{},
		members:     map[string]map[string]*groupMember{},
		secrets:     map[string]*model.Secret{},
		values:      map[string]map[string]*model.SecretValue{},
		activations: map[string]*model.ActivationToken{},
	}
}

// Store is a single-process, mutex-protected Repository.
type Store struct {
	mu sync.Mutex
	d  *data
}

func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) Close() error { return nil }

// WithTransaction holds the store-wide lock for the duration of fn,
// standing in for a real transaction's isolation. It does not roll back:
// writes fn made before returning an error (or panicking) stay in place,
// whereas a database store's rollback undoes them.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, txView{s.d})
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.CountUsers(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GetUser(ctx, id)
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GetUserByLogin(ctx, login)
}

func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.UpdateUser(ctx, u)
}

func (s *Store) CreateGroup(ctx context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.CreateGroup(ctx, g)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GetGroup(ctx, id)
}

func (s *Store) SearchGroups(ctx context.Context, nameGlob string) ([]*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.SearchGroups(ctx, nameGlob)
}

func (s *Store) UpdateGroup(ctx context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.UpdateGroup(ctx, g)
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.DeleteGroup(ctx, id)
}

func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GroupMembers(ctx, groupID)
}

func (s *Store) AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.AddGroupMember(ctx, userID, kci)
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.RemoveGroupMember(ctx, groupID, userID)
}

func (s *Store) CreateSecret(ctx context.Context, sec *model.Secret, values []*model.SecretValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.CreateSecret(ctx, sec, values)
}

func (s *Store) GetSecretValue(ctx context.Context, secretID string, memberOf []string) (*model.Secret, *model.SecretValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GetSecretValue(ctx, secretID, memberOf)
}

func (s *Store) SearchSecrets(ctx context.Context, memberOf []string) ([]*model.Secret, []*model.SecretValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.SearchSecrets(ctx, memberOf)
}

func (s *Store) SecretGroups(ctx context.Context, secretID string) ([]*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.SecretGroups(ctx, secretID)
}

func (s *Store) UpdateSecretAuthor(ctx context.Context, secretID string, valueAuthorID, metaAuthorID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.UpdateSecretAuthor(ctx, secretID, valueAuthorID, metaAuthorID)
}

func (s *Store) PutSecretValue(ctx context.Context, sv *model.SecretValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.PutSecretValue(ctx, sv)
}

func (s *Store) DeleteSecret(ctx context.Context, secretID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.DeleteSecret(ctx, secretID)
}

func (s *Store) CreateActivationToken(ctx context.Context, t *model.ActivationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.CreateActivationToken(ctx, t)
}

func (s *Store) GetActivationToken(ctx context.Context, userID string) (*model.ActivationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.GetActivationToken(ctx, userID)
}

func (s *Store) DeleteActivationTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return txView{s.d}.DeleteActivationTokens(ctx, userID)
}

var _ store.Repository = (*Store)(nil)
