package printdesk

import (
	"context"
	"fmt"

	"github.com/MrEthical07/printdesk/store"
	"github.com/redis/go-redis/v9"
)

// OpenStore builds the substrate named by cfg.Driver. The returned close
// function releases backend connections and is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.KV, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", StoreMemory:
		return store.NewMemoryStore(), noop, nil
	case StoreFile:
		fs, err := store.NewFileStore(cfg.FilePath, store.WithPassphrase(cfg.Passphrase))
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := store.NewRedisStore(rdb, cfg.RedisPrefix, cfg.RedisTTL)
		if err := rs.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return rs, rdb.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
