// Package pgstore implements store.Repository against the same
// relational schema as internal/store/sqlstore (spec.md §6), backed by
// Postgres through jackc/pgx/v5's database/sql driver, grounded on
// storage/rdb/connection.go's pgx.ParseConfig + stdlib.RegisterConnConfig
// + sql.Open("pgx", ...) pattern.
package pgstore

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"kstor/internal/model"
	"kstor/internal/store"
)

// Store is a sql.DB-backed store.Repository talking to Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to the Postgres instance at databaseURL (a postgres://
// connection string) and brings its schema up to date.
func Open(databaseURL string) (*Store, error) {
	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	connStr := stdlib.RegisterConnConfig(connConfig)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// execer is satisfied by both *sql.DB and *sql.Tx, letting txView run
// unchanged whether or not it's inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, &txView{db: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return (&txView{db: s.db}).CountUsers(ctx)
}
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	return (&txView{db: s.db}).CreateUser(ctx, u)
}
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return (&txView{db: s.db}).GetUser(ctx, id)
}
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return (&txView{db: s.db}).GetUserByLogin(ctx, login)
}
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	return (&txView{db: s.db}).UpdateUser(ctx, u)
}
func (s *Store) CreateGroup(ctx context.Context, g *model.Group) error {
	return (&txView{db: s.db}).CreateGroup(ctx, g)
}
func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return (&txView{db: s.db}).GetGroup(ctx, id)
}
func (s *Store) SearchGroups(ctx context.Context, nameGlob string) ([]*model.Group, error) {
	return (&txView{db: s.db}).SearchGroups(ctx, nameGlob)
}
func (s *Store) UpdateGroup(ctx context.Context, g *model.Group) error {
	return (&txView{db: s.db}).UpdateGroup(ctx, g)
}
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return (&txView{db: s.db}).DeleteGroup(ctx, id)
}
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]*model.User, error) {
	return (&txView{db: s.db}).GroupMembers(ctx, groupID)
}
func (s *Store) AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error {
	return (&txView{db: s.db}).AddGroupMember(ctx, userID, kci)
}
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return (&txView{db: s.db}).RemoveGroupMember(ctx, groupID, userID)
}
func (s *Store) CreateSecret(ctx context.Context, sec *model.Secret, values []*model.SecretValue) error {
	return (&txView{db: s.db}).CreateSecret(ctx, sec, values)
}
func (s *Store) GetSecretValue(ctx context.Context, secretID string, memberOf []string) (*model.Secret, *model.SecretValue, error) {
	return (&txView{db: s.db}).GetSecretValue(ctx, secretID, memberOf)
}
func (s *Store) SearchSecrets(ctx context.Context, memberOf []string) ([]*model.Secret, []*model.SecretValue, error) {
	return (&txView{db: s.db}).SearchSecrets(ctx, memberOf)
}
func (s *Store) SecretGroups(ctx context.Context, secretID string) ([]*model.Group, error) {
	return (&txView{db: s.db}).SecretGroups(ctx, secretID)
}
func (s *Store) UpdateSecretAuthor(ctx context.Context, secretID string, valueAuthorID, metaAuthorID *string) error {
	return (&txView{db: s.db}).UpdateSecretAuthor(ctx, secretID, valueAuthorID, metaAuthorID)
}
func (s *Store) PutSecretValue(ctx context.Context, sv *model.SecretValue) error {
	return (&txView{db: s.db}).PutSecretValue(ctx, sv)
}
func (s *Store) DeleteSecret(ctx context.Context, secretID string) error {
	return (&txView{db: s.db}).DeleteSecret(ctx, secretID)
}
func (s *Store) CreateActivationToken(ctx context.Context, t *model.ActivationToken) error {
	return (&txView{db: s.db}).CreateActivationToken(ctx, t)
}
func (s *Store) GetActivationToken(ctx context.Context, userID string) (*model.ActivationToken, error) {
	return (&txView{db: s.db}).GetActivationToken(ctx, userID)
}
func (s *Store) DeleteActivationTokens(ctx context.Context, userID string) error {
	return (&txView{db: s.db}).DeleteActivationTokens(ctx, userID)
}
