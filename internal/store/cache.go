package store

import (
	"context"
	"time"

	"github.com/muesli/cache2go"

	"kstor/internal/model"
	"kstor/internal/notify"
)

// CachingRepository wraps a Repository with a process-wide cache of
// users and groups (spec.md §5), invalidated by key on every write and
// fanned out across the process via a notify.Bus, the same pairing the
// teacher's remote/factory.go (cache2go) and services/notification/
// local.go (pubsub) provide separately for its own cache layer.
type CachingRepository struct {
	Repository
	users  *cache2go.CacheTable
	groups *cache2go.CacheTable
	bus    *notify.Bus
}

// cacheTTL bounds how long a cache entry survives with no explicit
// invalidation; writes still invalidate immediately, this is only a
// backstop against the cache never noticing out-of-process changes (e.g.
// another kstord instance, not itself a supported topology per spec.md
// §1's Non-goals, but harmless to guard against).
const cacheTTL = 5 * time.Minute

func NewCachingRepository(backing Repository, bus *notify.Bus) *CachingRepository {
	c := &CachingRepository{
		Repository: backing,
		users:      cache2go.Cache("kstor-users"),
		groups:     cache2go.Cache("kstor-groups"),
		bus:        bus,
	}
	c.users.SetExpirationMany(cacheTTL)
	c.groups.SetExpirationMany(cacheTTL)

	invalidated := bus.Subscribe(notify.TopicUserChanged)
	go c.invalidateLoop(invalidated, c.users)
	invalidatedGroups := bus.Subscribe(notify.TopicGroupChanged)
	go c.invalidateLoop(invalidatedGroups, c.groups)

	return c
}

func (c *CachingRepository) invalidateLoop(ch chan any, table *cache2go.CacheTable) {
	for v := range ch {
		if key, ok := v.(string); ok {
			table.Delete(key)
		}
	}
}

// WithTransaction wraps the backing transaction view in a CachingRepository
// sharing this instance's cache tables and bus, so writes performed
// inside a transaction invalidate the same cache the top-level repository
// reads from.
func (c *CachingRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return c.Repository.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		wrapped := &CachingRepository{Repository: tx, users: c.users, groups: c.groups, bus: c.bus}
		return fn(ctx, wrapped)
	})
}

func (c *CachingRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	if item, err := c.users.Value(id); err == nil {
		return item.Data().(*model.User).StripEphemeral(), nil
	}
	u, err := c.Repository.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	c.users.Add(id, cacheTTL, u)
	return u, nil
}

func (c *CachingRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	// Logins aren't keyed directly in the cache table (the cache is keyed
	// by id, matching how the user's own id is known to every other
	// cached lookup); fall through to the backing store and prime the id
	// entry for subsequent GetUser calls.
	u, err := c.Repository.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	c.users.Add(u.ID, cacheTTL, u)
	return u, nil
}

func (c *CachingRepository) UpdateUser(ctx context.Context, u *model.User) error {
	if err := c.Repository.UpdateUser(ctx, u); err != nil {
		return err
	}
	c.invalidateUser(u.ID)
	return nil
}

func (c *CachingRepository) CreateUser(ctx context.Context, u *model.User) error {
	if err := c.Repository.CreateUser(ctx, u); err != nil {
		return err
	}
	c.invalidateUser(u.ID)
	return nil
}

func (c *CachingRepository) invalidateUser(id string) {
	c.users.Delete(id)
	c.bus.Publish(notify.TopicUserChanged, id)
}

func (c *CachingRepository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	if item, err := c.groups.Value(id); err == nil {
		return item.Data().(*model.Group), nil
	}
	g, err := c.Repository.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.groups.Add(id, cacheTTL, g)
	return g, nil
}

func (c *CachingRepository) CreateGroup(ctx context.Context, g *model.Group) error {
	if err := c.Repository.CreateGroup(ctx, g); err != nil {
		return err
	}
	c.invalidateGroup(g.ID)
	return nil
}

func (c *CachingRepository) UpdateGroup(ctx context.Context, g *model.Group) error {
	if err := c.Repository.UpdateGroup(ctx, g); err != nil {
		return err
	}
	c.invalidateGroup(g.ID)
	return nil
}

func (c *CachingRepository) DeleteGroup(ctx context.Context, id string) error {
	if err := c.Repository.DeleteGroup(ctx, id); err != nil {
		return err
	}
	c.invalidateGroup(id)
	return nil
}

func (c *CachingRepository) AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error {
	if err := c.Repository.AddGroupMember(ctx, userID, kci); err != nil {
		return err
	}
	// Per spec.md §9's open question: invalidating the users cache entry
	// here makes the new keychain entry visible on the *next*
	// authenticate for userID; it deliberately does not, and cannot,
	// reach into the currently in-flight User object of the caller's
	// request.
	c.invalidateUser(userID)
	c.invalidateGroup(kci.GroupID)
	return nil
}

func (c *CachingRepository) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	if err := c.Repository.RemoveGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	c.invalidateUser(userID)
	c.invalidateGroup(groupID)
	return nil
}

func (c *CachingRepository) invalidateGroup(id string) {
	c.groups.Delete(id)
	c.bus.Publish(notify.TopicGroupChanged, id)
}

// Close shuts down the invalidation bus before closing the backing
// repository, stopping invalidateLoop's goroutines.
func (c *CachingRepository) Close() error {
	c.bus.Close()
	return c.Repository.Close()
}
