package middleware

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/jaskirat05/graviton-bridge/pkg/lock"
)

var (
	globalWriteLock *lock.DistributedLock
	localWriteLock  sync.Mutex
)

// InitWriteLock sets the global distributed write lock instance. When set,
// config mutations serialize across every bridge worker sharing the Redis;
// without it they serialize within this process only.
func InitWriteLock(l *lock.DistributedLock) {
	globalWriteLock = l
}

// WriteLockMw returns the middleware guarding config mutations.
func WriteLockMw() app.HandlerFunc {
	if globalWriteLock == nil {
		return localLockHandler()
	}
	return distributedLockHandler()
}

func localLockHandler() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		localWriteLock.Lock()
		defer localWriteLock.Unlock()
		c.Next(ctx)
	}
}

func distributedLockHandler() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		lockID, err := globalWriteLock.Acquire(ctx)
		if err != nil {
			log.Printf("[WriteLock] failed to acquire lock: %v", err)
			c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"code": http.StatusServiceUnavailable,
				"msg":  "service busy, please retry later",
			})
			c.Abort()
			return
		}
		defer func() {
			if releaseErr := globalWriteLock.Release(ctx, lockID); releaseErr != nil {
				log.Printf("[WriteLock] failed to release lock: %v", releaseErr)
			}
		}()
		c.Next(ctx)
	}
}
