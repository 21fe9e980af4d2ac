package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/almoner-platform/almoner-allocation/pkg/lock"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

const (
	lockPrefix = "almoner:job:lock:"
)

// DistributedLock 任务级分布式锁
// 在通用 Redis 锁上叠加 watchdog 续期，长任务执行期间锁不会自然过期
type DistributedLock struct {
	inner       *lock.RedisLock
	key         string
	ttl         time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
	useWatchdog bool
}

// NewDistributedLock 创建任务锁
func NewDistributedLock(client redis.UniversalClient, jobName string, ttl time.Duration, useWatchdog bool) *DistributedLock {
	key := lockPrefix + jobName
	return &DistributedLock{
		inner:       lock.NewRedisLock(client, key, ttl),
		key:         key,
		ttl:         ttl,
		stopCh:      make(chan struct{}),
		useWatchdog: useWatchdog,
	}
}

// TryLock 尝试获取锁，未抢到返回 false
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.inner.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if ok && l.useWatchdog {
		l.startWatchdog(ctx)
	}
	return ok, nil
}

// Unlock 释放锁
// 锁已过期或被强制解锁时静默返回，不视为错误
func (l *DistributedLock) Unlock(ctx context.Context) error {
	if l.useWatchdog {
		close(l.stopCh)
		l.wg.Wait()
	}

	if err := l.inner.Release(ctx); err != nil {
		if errors.Is(err, lock.ErrLockNotHeld) {
			return nil
		}
		return err
	}
	return nil
}

// startWatchdog 周期续期，任务收尾或上下文取消时退出
func (l *DistributedLock) startWatchdog(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		// 在 TTL 的 1/3 时间点续期
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				if err := l.inner.Extend(ctx, l.ttl); err != nil {
					logger.Warn("failed to renew job lock",
						"key", l.key,
						"error", err)
				}
			}
		}
	}()
}

// LockManager 任务锁管理器
type LockManager struct {
	client redis.UniversalClient
}

// NewLockManager 创建锁管理器
func NewLockManager(client redis.UniversalClient) *LockManager {
	return &LockManager{client: client}
}

// NewLock 创建新锁
func (m *LockManager) NewLock(jobName string, ttl time.Duration, useWatchdog bool) *DistributedLock {
	return NewDistributedLock(m.client, jobName, ttl, useWatchdog)
}

// IsLocked 检查任务是否被锁定
func (m *LockManager) IsLocked(ctx context.Context, jobName string) (bool, error) {
	exists, err := m.client.Exists(ctx, lockPrefix+jobName).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// ForceUnlock 强制解锁 (管理员操作)
func (m *LockManager) ForceUnlock(ctx context.Context, jobName string) error {
	return m.client.Del(ctx, lockPrefix+jobName).Err()
}

// GetLockInfo 获取锁持有者与剩余 TTL
func (m *LockManager) GetLockInfo(ctx context.Context, jobName string) (string, time.Duration, error) {
	key := lockPrefix + jobName

	pipe := m.client.Pipeline()
	valCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return "", 0, err
	}

	val, _ := valCmd.Result()
	ttl, _ := ttlCmd.Result()

	return val, ttl, nil
}
