package cache

import (
	"context"
	"sync/atomic"
	"time"

	"sportsync/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCache serves from primary until it errors, then from fallback,
// probing primary again once per recoveryInterval.
type FailoverCache struct {
	primary   domain.Cache
	fallback  domain.Cache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverCache(primary, fallback domain.Cache, logger *zerolog.Logger) *FailoverCache {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (c *FailoverCache) Degraded() bool {
	return c.isDown.Load()
}

func (c *FailoverCache) usePrimary() bool {
	if !c.isDown.Load() {
		return true
	}
	return c.now().Sub(time.Unix(0, c.lastCheck.Load())) > recoveryInterval
}

func (c *FailoverCache) markDown(err error) {
	if !c.isDown.Swap(true) {
		c.logger.Error().Err(err).Msg("primary cache failed, falling back to memory")
	}
	c.lastCheck.Store(c.now().UnixNano())
}

func (c *FailoverCache) markUp() {
	if c.isDown.Swap(false) {
		c.logger.Info().Msg("primary cache recovered")
	}
}

func (c *FailoverCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c.usePrimary() {
		found, err := c.primary.GetJSON(ctx, key, dest)
		if err == nil {
			c.markUp()
			return found, nil
		}
		c.markDown(err)
	}
	return c.fallback.GetJSON(ctx, key, dest)
}

func (c *FailoverCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.usePrimary() {
		err := c.primary.SetJSON(ctx, key, value, ttl)
		if err == nil {
			c.markUp()
			return nil
		}
		c.markDown(err)
	}
	return c.fallback.SetJSON(ctx, key, value, ttl)
}

func (c *FailoverCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	if c.usePrimary() {
		keys, err := c.primary.Keys(ctx, prefix)
		if err == nil {
			c.markUp()
			return keys, nil
		}
		c.markDown(err)
	}
	return c.fallback.Keys(ctx, prefix)
}

// DeletePrefix clears both stores so stale fallback entries do not outlive
// an invalidation.
func (c *FailoverCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted, _ := c.fallback.DeletePrefix(ctx, prefix)
	if c.usePrimary() {
		n, err := c.primary.DeletePrefix(ctx, prefix)
		if err == nil {
			c.markUp()
			return deleted + n, nil
		}
		c.markDown(err)
	}
	return deleted, nil
}
