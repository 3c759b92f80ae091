package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/logger"
)

// autoApply reports whether the API should migrate on boot. A SQLite backend
// is a throwaway showroom database and is always brought up to date; postgres
// only in dev with the auto-migrate flag on.
func autoApply(cfg *config.Config, dialect string) bool {
	if dialect == db.DialectSQLite {
		return true
	}
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev applies the embedded migrations when autoApply allows it and
// logs the resulting schema version.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	dialect := client.Dialect()
	if !autoApply(cfg, dialect) {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("auto-migrate: sql handle: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": dialect})

	if err := Run(ctx, sqlDB, dialect, EmbeddedDir, "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("auto-migrate: read schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "migrate.auto_applied")
	return nil
}
