package store

import (
	"fmt"

	"github.com/ashureev/pm-roleplay/internal/config"
)

// Open builds the KV backend selected by configuration.
func Open(cfg config.StorageConfig) (KV, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		s, err := NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageRedis:
		r, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.StorageMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
