package records

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendMemory    = "memory"
)

// Config selects and configures a record store backend.
type Config struct {
	Backend   string
	Firestore FirestoreConfig
	Redis     RedisConfig
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFirestore, "":
		return NewFirestoreStore(ctx, cfg.Firestore)
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
