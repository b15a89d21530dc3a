package platform

import (
	"context"
	"sync"

	"tgharvester/internal/wire"
)

// AccountInfoCache fetches GetMe once per Client and memoizes it, grounded
// on original_source/'s per-session account cache (spec §10): the premium
// flag gates the 4096-character caption cap in internal/publish, and nothing
// in this codebase should call GetMe more than once per session.
type AccountInfoCache struct {
	client Client

	mu   sync.Mutex
	info wire.AccountInfo
	done bool
	err  error
}

func NewAccountInfoCache(client Client) *AccountInfoCache {
	return &AccountInfoCache{client: client}
}

func (c *AccountInfoCache) Get(ctx context.Context) (wire.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.info, c.err
	}
	c.info, c.err = c.client.GetMe(ctx)
	c.done = true
	return c.info, c.err
}
