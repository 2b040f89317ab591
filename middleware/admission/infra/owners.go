package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisOwnerDirectory lê o dono de um recurso de um hash por tipo:
// HGET <prefix>:<kind> <id>.
type RedisOwnerDirectory struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisOwnerDirectory(rdb redis.UniversalClient, prefix string) *RedisOwnerDirectory {
	if prefix = strings.Trim(prefix, ":"); prefix == "" {
		prefix = "owners"
	}
	return &RedisOwnerDirectory{rdb: rdb, prefix: prefix}
}

func (d *RedisOwnerDirectory) Owner(ctx context.Context, kind, id string) (string, error) {
	owner, err := d.rdb.HGet(ctx, d.prefix+":"+kind, id).Result()
	if errors.Is(err, redis.Nil) || (err == nil && owner == "") {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis hget owner: %w", err)
	}
	return owner, nil
}

func (d *RedisOwnerDirectory) SetOwner(ctx context.Context, kind, id, owner string) error {
	return d.rdb.HSet(ctx, d.prefix+":"+kind, id, owner).Err()
}

// MemoryOwnerDirectory é usado em testes e no backend "memory".
type MemoryOwnerDirectory struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewMemoryOwnerDirectory() *MemoryOwnerDirectory {
	return &MemoryOwnerDirectory{owners: make(map[string]string)}
}

func (d *MemoryOwnerDirectory) Owner(_ context.Context, kind, id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owner, ok := d.owners[kind+"/"+id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return owner, nil
}

func (d *MemoryOwnerDirectory) SetOwner(_ context.Context, kind, id, owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[kind+"/"+id] = owner
	return nil
}
