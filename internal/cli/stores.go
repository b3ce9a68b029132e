package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carewh-lab/carewh/internal/core/config"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/carewh-lab/carewh/internal/core/storage/mysql"
	"github.com/carewh-lab/carewh/internal/core/storage/postgres"
	"github.com/carewh-lab/carewh/internal/migrations"
)

// Stores is an open source and warehouse pair.
type Stores struct {
	Source    storage.Source
	Warehouse storage.Warehouse
	close     []func() error
}

// Close releases every connection pool the stores hold.
func (s *Stores) Close() {
	for _, fn := range s.close {
		if err := fn(); err != nil {
			slog.Warn("[CLI] Failed to close store", "error", err)
		}
	}
}

type (
	ConnectFunc func(ctx context.Context, cfg *config.Config) (*Stores, error)
	MigrateFunc func(ctx context.Context, cfg *config.Config, req MigrateRequest) (migrations.Status, error)
)

// MigrateRequest selects what the migrate command does. A zero value
// applies every pending migration.
type MigrateRequest struct {
	StatusOnly bool
	Down       int
}

// connectStores opens both databases and applies the embedded migrations
// when warehouse.auto_migrate is set.
func connectStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	src, err := mysql.NewSource(sourceOptions(cfg))
	if err != nil {
		return nil, err
	}

	wh, err := postgres.NewAdapter(cfg.Warehouse.DSN, cfg.Warehouse.MaxOpenConns, cfg.Warehouse.MaxIdleConns)
	if err != nil {
		src.Close()
		return nil, err
	}

	if _, err := migrations.RunMigrations(ctx, wh.DB(), cfg.Warehouse.AutoMigrate); err != nil {
		src.Close()
		wh.Close()
		return nil, fmt.Errorf("migrate warehouse: %w", err)
	}

	return &Stores{
		Source:    src,
		Warehouse: wh,
		close:     []func() error{src.Close, wh.Close},
	}, nil
}

func migrateWarehouse(ctx context.Context, cfg *config.Config, req MigrateRequest) (migrations.Status, error) {
	wh, err := postgres.NewAdapter(cfg.Warehouse.DSN, cfg.Warehouse.MaxOpenConns, cfg.Warehouse.MaxIdleConns)
	if err != nil {
		return migrations.Status{}, err
	}
	defer wh.Close()

	mg, err := migrations.Open(ctx, wh.DB())
	if err != nil {
		return migrations.Status{}, err
	}
	defer mg.Close()

	switch {
	case req.StatusOnly:
		return mg.Status(ctx)
	case req.Down > 0:
		return mg.Down(ctx, req.Down)
	default:
		return mg.Up(ctx)
	}
}

func sourceOptions(cfg *config.Config) mysql.Options {
	return mysql.Options{
		Host:         cfg.Source.Host,
		Port:         cfg.Source.Port,
		User:         cfg.Source.User,
		Password:     cfg.Source.Password,
		Database:     cfg.Source.Database,
		MaxOpenConns: cfg.Source.MaxOpenConns,
		MaxIdleConns: cfg.Source.MaxIdleConns,
		BatchSize:    cfg.Engine.BatchSize,
	}
}
