package audience

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
)

// CachedDirectory memoizes roster lookups for a short TTL so one sweep
// over many targets does not query the same branch or parent list
// repeatedly. Existence checks for explicit user lists are not cached.
type CachedDirectory struct {
	repository.DirectoryRepository
	cache *cache.Cache
}

func NewCachedDirectory(dir repository.DirectoryRepository, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		DirectoryRepository: dir,
		cache:               cache.New(ttl, 2*ttl),
	}
}

func (d *CachedDirectory) BranchMembers(ctx context.Context, branchID uuid.UUID, group model.Group) ([]uuid.UUID, error) {
	key := fmt.Sprintf("branch:%s:%s", branchID, group)
	return d.ids(key, func() ([]uuid.UUID, error) {
		return d.DirectoryRepository.BranchMembers(ctx, branchID, group)
	})
}

func (d *CachedDirectory) ActiveAccounts(ctx context.Context, roles []model.Role) ([]uuid.UUID, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	sort.Strings(names)
	key := "active:" + strings.Join(names, ",")
	return d.ids(key, func() ([]uuid.UUID, error) {
		return d.DirectoryRepository.ActiveAccounts(ctx, roles)
	})
}

func (d *CachedDirectory) ParentsOfPlayer(ctx context.Context, playerID uuid.UUID) ([]uuid.UUID, error) {
	return d.ids("parents:"+playerID.String(), func() ([]uuid.UUID, error) {
		return d.DirectoryRepository.ParentsOfPlayer(ctx, playerID)
	})
}

func (d *CachedDirectory) Account(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	key := "account:" + id.String()
	if v, ok := d.cache.Get(key); ok {
		return v.(*model.Account), nil
	}
	account, err := d.DirectoryRepository.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, account)
	return account, nil
}

// Flush drops every cached entry.
func (d *CachedDirectory) Flush() {
	d.cache.Flush()
}

func (d *CachedDirectory) ids(key string, load func() ([]uuid.UUID, error)) ([]uuid.UUID, error) {
	if v, ok := d.cache.Get(key); ok {
		return v.([]uuid.UUID), nil
	}
	ids, err := load()
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, ids)
	return ids, nil
}
