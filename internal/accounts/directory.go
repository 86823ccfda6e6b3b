// Package accounts resolves a user's stored platform credentials. Linking
// and token refresh belong to the OAuth flow; this is the read side the
// orchestrator consults per publish attempt.
package accounts

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"crosspost/internal/domain"
	"crosspost/internal/store"
)

// Directory looks up the connected account for (user, platform).
// Returns domain.ErrAccountNotConnected when none is linked.
type Directory interface {
	FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error)
}

// StoreDirectory is a Directory over the SQLite store with a small LRU in
// front; credentials are read once per target per pass, and posts with
// many targets hit the same rows repeatedly.
type StoreDirectory struct {
	store store.Store
	cache *lru.Cache[string, domain.Account]
}

func NewStoreDirectory(s store.Store, cacheSize int) (*StoreDirectory, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := lru.New[string, domain.Account](cacheSize)
	if err != nil {
		return nil, err
	}
	return &StoreDirectory{store: s, cache: c}, nil
}

func cacheKey(userID string, platform domain.Platform) string {
	return userID + "/" + string(platform)
}

func (d *StoreDirectory) FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error) {
	key := cacheKey(userID, platform)
	if a, ok := d.cache.Get(key); ok {
		return a, nil
	}
	a, err := d.store.FindAccount(ctx, userID, platform)
	if err != nil {
		return domain.Account{}, err
	}
	d.cache.Add(key, a)
	return a, nil
}

// Connect stores (or replaces) a linked account and drops any cached entry.
func (d *StoreDirectory) Connect(ctx context.Context, a domain.Account) (string, error) {
	if a.AccessToken == "" {
		return "", fmt.Errorf("access token is required")
	}
	id, err := d.store.CreateAccount(ctx, a)
	if err != nil {
		return "", err
	}
	d.cache.Remove(cacheKey(a.UserID, a.Platform))
	return id, nil
}

// Disconnect removes a linked account. The cache is purged wholesale; the
// store is keyed by account id, not (user, platform), and disconnects are
// rare.
func (d *StoreDirectory) Disconnect(ctx context.Context, accountID string) error {
	if err := d.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	d.cache.Purge()
	return nil
}
