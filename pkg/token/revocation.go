package token

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationStore 记录已登出的 token，直到它们自然过期。
type RevocationStore interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	Close() error
}

// MemoryRevocationStore 是进程内的吊销表。
// 重启后清空，且不在多个实例之间共享；多实例部署应使用 RedisRevocationStore。
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore 创建一个空的内存吊销表。
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, token string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = until
	s.sweepLocked()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[token]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.revoked, token)
		return false, nil
	}
	return true, nil
}

// Close 清空吊销表。
func (s *MemoryRevocationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = make(map[string]time.Time)
	return nil
}

// sweepLocked 删除已经过期的条目，调用方必须持有锁。
func (s *MemoryRevocationStore) sweepLocked() {
	now := s.now()
	for t, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, t)
		}
	}
}

const blacklistPrefix = "blacklist:"

// RedisRevocationStore 将吊销的 token 写入 Redis，TTL 为 token 剩余有效期。
type RedisRevocationStore struct {
	rdb *redis.Client
}

// NewRedisRevocationStore 使用已连接的 Redis 客户端创建吊销表。
func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, blacklistPrefix+token, 1, ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 不关闭共享的 Redis 客户端，客户端由 main 负责释放。
func (s *RedisRevocationStore) Close() error {
	return nil
}
