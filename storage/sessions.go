package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"videoInsight/core"
)

// SessionStore 持久化对话会话快照
type SessionStore interface {
	Save(ctx context.Context, snap core.SessionSnapshot) error
	// Load 不存在时返回 (nil, nil)
	Load(ctx context.Context, videoID string) (*core.SessionSnapshot, error)
	Delete(ctx context.Context, videoID string) error
	Close() error
}

// ---------------- Memory implementation ----------------

type MemorySessionStore struct {
	mu    sync.RWMutex
	snaps map[string]core.SessionSnapshot
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{snaps: make(map[string]core.SessionSnapshot)}
}

func (m *MemorySessionStore) Save(ctx context.Context, snap core.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Turns = append([]core.ConversationTurn(nil), snap.Turns...)
	m.snaps[snap.VideoID] = snap
	return nil
}

func (m *MemorySessionStore) Load(ctx context.Context, videoID string) (*core.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[videoID]
	if !ok {
		return nil, nil
	}
	snap.Turns = append([]core.ConversationTurn(nil), snap.Turns...)
	return &snap, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, videoID)
	return nil
}

func (m *MemorySessionStore) Close() error { return nil }

// ---------------- Redis implementation ----------------

type RedisSessionStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore 连接 Redis 并校验连通性
func NewRedisSessionStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSessionStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSessionStore{rdb: rdb, prefix: "videoinsight:session:", ttl: ttl}, nil
}

func (r *RedisSessionStore) key(videoID string) string {
	return r.prefix + videoID
}

func (r *RedisSessionStore) Save(ctx context.Context, snap core.SessionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(snap.VideoID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Load(ctx context.Context, videoID string) (*core.SessionSnapshot, error) {
	raw, err := r.rdb.Get(ctx, r.key(videoID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var snap core.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &snap, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, videoID string) error {
	if err := r.rdb.Del(ctx, r.key(videoID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Close() error {
	return r.rdb.Close()
}
