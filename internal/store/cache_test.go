package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kstor/internal/model"
	"kstor/internal/notify"
	"kstor/internal/store"
	"kstor/internal/store/memstore"
)

func TestCachingRepositoryInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus(4)
	defer bus.Close()
	repo := store.NewCachingRepository(memstore.New(), bus)

	u := model.NewUser(model.NewID(), "alice", "Alice", model.StatusAdmin)
	require.NoError(t, repo.CreateUser(ctx, u))

	got, err := repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Login)

	u.Name = "Alice Updated"
	require.NoError(t, repo.UpdateUser(ctx, u))

	got, err = repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice Updated", got.Name)
}

func TestCachingRepositoryWithTransactionPropagatesInvalidation(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus(4)
	defer bus.Close()
	repo := store.NewCachingRepository(memstore.New(), bus)

	u := model.NewUser(model.NewID(), "bob", "Bob", model.StatusActive)
	require.NoError(t, repo.CreateUser(ctx, u))
	_, err := repo.GetUser(ctx, u.ID) // prime the cache
	require.NoError(t, err)

	err = repo.WithTransaction(ctx, func(ctx context.Context, tx store.Repository) error {
		u.Name = "Bob In Tx"
		return tx.UpdateUser(ctx, u)
	})
	require.NoError(t, err)

	got, err := repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Bob In Tx", got.Name)
}
