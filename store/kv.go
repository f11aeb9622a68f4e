package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"consultation-desk/models"
	"consultation-desk/utils"

	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("key not found")

// KV is the persistent key/value medium under the local store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type RedisKV struct {
	client utils.RedisClient
}

func NewRedisKV(client utils.RedisClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.GetFromCache(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return v, nil
}

// Set stores without expiration.
func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.SetToCache(ctx, key, value, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

type postgresRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

type PostgresKV struct {
	repo postgresRepository
}

func NewPostgresKV(repo *models.PostgresRepository) *PostgresKV {
	return &PostgresKV{repo: repo}
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, error) {
	v, err := p.repo.Get(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return v, nil
}

func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	if err := p.repo.Put(ctx, key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
