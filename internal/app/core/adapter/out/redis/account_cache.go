package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	redispkg "github.com/JoeShih716/go-bank-ledger/pkg/redis"
)

// AccountKeyPrefix 帳戶快取 key 前綴，完整 key 為 ledger:account:<id>
const AccountKeyPrefix = "ledger:account:"

// AccountCache 以 Redis 實作的帳戶讀取快取
type AccountCache struct {
	cache *redispkg.ViewCache[domain.Account]
}

func NewAccountCache(client goredis.UniversalClient, ttl time.Duration, logger *slog.Logger) *AccountCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountCache{
		cache: redispkg.NewViewCache[domain.Account](client, AccountKeyPrefix, ttl).WithLogger(logger),
	}
}

func (c *AccountCache) Get(ctx context.Context, id int64) (*domain.Account, int64, bool) {
	return c.cache.Get(ctx, strconv.FormatInt(id, 10))
}

// Fill 只在 version 之後沒有 Invalidate 時寫入快取
func (c *AccountCache) Fill(ctx context.Context, account *domain.Account, version int64) {
	c.cache.SetIfVersion(ctx, strconv.FormatInt(account.ID, 10), account, version)
}

func (c *AccountCache) Invalidate(ctx context.Context, ids ...int64) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatInt(id, 10)
	}
	c.cache.Invalidate(ctx, keys...)
}

var _ usecase.AccountCache = (*AccountCache)(nil)
