package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
)

// Memory is a per-process TTL cache of accounts keyed by id.
// Cached accounts never carry the password hash.
type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
	now func() time.Time
}

type entry struct {
	val account.Account
	exp time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Memory{
		ttl: ttl,
		m:   make(map[string]entry),
		now: time.Now,
	}
}

func (c *Memory) Get(_ context.Context, id string) (account.Account, bool, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[id]
	c.mu.RUnlock()
	if !ok {
		return account.Account{}, false, nil
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a Set may have refreshed it meanwhile
		if cur, ok := c.m[id]; ok && now.After(cur.exp) {
			delete(c.m, id)
		}
		c.mu.Unlock()
		return account.Account{}, false, nil
	}

	return e.val, true, nil
}

func (c *Memory) Set(_ context.Context, a account.Account) error {
	a.PasswordHash = ""
	c.mu.Lock()
	c.m[a.ID] = entry{val: a, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.m, id)
	c.mu.Unlock()
	return nil
}

func (c *Memory) Clear() {
	c.mu.Lock()
	c.m = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
