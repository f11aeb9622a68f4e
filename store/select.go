package store

import (
	"errors"
	"fmt"
	"time"

	"consultation-desk/config"
	"consultation-desk/models"
	"consultation-desk/utils"

	"go.uber.org/zap"
)

// Deps carries the connections main managed to open. A nil connection for
// the configured medium yields an Unavailable store.
type Deps struct {
	Redis     utils.RedisClient
	Postgres  *models.PostgresRepository
	Documents DocumentRenderer
	Events    EventProducer
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Select picks the backend once, at startup, and wraps it with metrics and
// event publishing. It returns the store and the backend's name.
func Select(cfg *config.Config, deps Deps) (Store, string) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		base Store
		name string
	)
	switch cfg.Backend() {
	case config.BackendBridge:
		name = config.BackendBridge
		if cfg.BridgeURL == "" {
			base = Unavailable{Reason: errors.New("BRIDGE_URL is not set")}
			break
		}
		base = NewBridgeStore(cfg.BridgeURL, cfg.BridgeToken, logger.Named("bridge"))
	default:
		name = config.BackendLocal + "/" + cfg.LocalKV
		kv, err := localKV(cfg.LocalKV, deps)
		if err != nil {
			base = Unavailable{Reason: err}
			break
		}
		opts := []LocalOption{}
		if deps.Documents != nil {
			opts = append(opts, WithDocuments(deps.Documents))
		}
		if deps.Clock != nil {
			opts = append(opts, WithClock(deps.Clock))
		}
		base = NewLocalStore(kv, cfg.StorageKey, opts...)
	}

	if u, ok := base.(Unavailable); ok {
		logger.Error("Store backend unavailable, every call will fail",
			zap.String("backend", name),
			zap.Error(u.Reason),
		)
	}

	var s Store = NewObserved(base, name, logger.Named("store"))
	if deps.Events != nil && cfg.KafkaTopic != "" {
		s = NewPublishing(s, deps.Events, cfg.KafkaTopic, logger.Named("events"))
	}
	return s, name
}

func localKV(medium string, deps Deps) (KV, error) {
	switch medium {
	case config.KVRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis is not connected")
		}
		return NewRedisKV(deps.Redis), nil
	case config.KVPostgres:
		if deps.Postgres == nil {
			return nil, errors.New("postgres is not connected")
		}
		return NewPostgresKV(deps.Postgres), nil
	case config.KVMemory, "":
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown LOCAL_KV %q", medium)
	}
}
