// Package repository selects the storage adapter for a configuration.
package repository

import (
	"context"
	"fmt"

	"github.com/soft-duck/shorty/pkg/adapters/repository/postgres"
	"github.com/soft-duck/shorty/pkg/adapters/repository/sqlite"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/ports"
)

// Open connects to the database named by cfg and applies its schema.
func Open(ctx context.Context, cfg *config.Config) (ports.LinkRepository, error) {
	switch driver := cfg.Driver(); driver {
	case "postgres":
		return postgres.NewPostgresRepository(ctx, cfg.DatabaseURL)
	case "sqlite", "libsql":
		return sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
