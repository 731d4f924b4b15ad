package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/redis/go-redis/v9"
)

const keyAccount = "accounthub:account:"

// Redis caches accounts as JSON documents shared by every API replica.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Get reports a miss (false, nil) when the key is absent.
func (c *Redis) Get(ctx context.Context, id string) (account.Account, bool, error) {
	b, err := c.rdb.Get(ctx, keyAccount+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return account.Account{}, false, nil
	}
	if err != nil {
		return account.Account{}, false, err
	}

	var a account.Account
	if err := json.Unmarshal(b, &a); err != nil {
		// treat a corrupt entry as a miss and drop it
		_ = c.rdb.Del(ctx, keyAccount+id).Err()
		return account.Account{}, false, nil
	}
	return a, true, nil
}

// Set stores a without its password hash (the hash is json:"-").
func (c *Redis) Set(ctx context.Context, a account.Account) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyAccount+a.ID, b, c.ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, keyAccount+id).Err()
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
