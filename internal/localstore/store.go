// Package localstore provides durable key/value storage for the shopper-side
// account core.
package localstore

import (
	"context"
	"fmt"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/logger"
	redisclient "github.com/dealerhub/showroom/pkg/redis"
)

// Store is the storage contract shared by every backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.ClientConfig, logg *logger.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemory(), nil
	case config.StoreDriverSQLite, "":
		client, err := db.New(ctx, config.DBConfig{SQLitePath: cfg.StorePath}, true, logg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return NewSQLite(ctx, client)
	case config.StoreDriverRedis:
		client, err := redisclient.DialURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return NewRedis(client, cfg.VisitorID), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
