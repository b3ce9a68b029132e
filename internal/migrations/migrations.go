// Package migrations embeds the warehouse star schema and applies it.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var MigrationFiles embed.FS

const (
	migrationsTable = "carewh_schema_migrations"

	// seedVersion is the first version at which dim_encounter_type has rows.
	seedVersion = 2

	queryEncounterTypes = `SELECT encounter_type_name FROM dim_encounter_type ORDER BY encounter_type_key`
)

// Status is where the warehouse schema stands against the embedded files.
type Status struct {
	Version        uint     `json:"version" yaml:"version"`
	Latest         uint     `json:"latest" yaml:"latest"`
	Dirty          bool     `json:"dirty" yaml:"dirty"`
	Pending        []uint   `json:"pending,omitempty" yaml:"pending,omitempty"`
	EncounterTypes []string `json:"encounter_types,omitempty" yaml:"encounter_types,omitempty"`
}

// UpToDate reports a clean schema with nothing left to apply.
func (s Status) UpToDate() bool {
	return !s.Dirty && len(s.Pending) == 0
}

// Migrator runs the embedded migrations over a single pinned connection.
// Close hands the connection back without closing the pool.
type Migrator struct {
	conn     *sql.Conn
	src      source.Driver
	m        *migrate.Migrate
	versions []uint
}

// Open pins a warehouse connection and prepares the embedded source.
func Open(ctx context.Context, db *sql.DB) (*Migrator, error) {
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin migration connection: %w", err)
	}

	dbDriver, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	src, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		src.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{conn: conn, src: src, m: m, versions: versions}, nil
}

func (mg *Migrator) Close() error {
	srcErr := mg.src.Close()
	if err := mg.conn.Close(); err != nil {
		return err
	}
	return srcErr
}

// Status reads the recorded version and, once seeded, the encounter types.
func (mg *Migrator) Status(ctx context.Context) (Status, error) {
	version, dirty, err := mg.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("failed to get current migration version: %w", err)
	}

	st := Status{
		Version: version,
		Dirty:   dirty,
		Pending: pendingVersions(mg.versions, version),
	}
	if n := len(mg.versions); n > 0 {
		st.Latest = mg.versions[n-1]
	}
	if !dirty && version >= seedVersion {
		if st.EncounterTypes, err = encounterTypes(ctx, mg.conn); err != nil {
			return Status{}, err
		}
	}
	return st, nil
}

// Up clears a dirty marker left by an interrupted run and applies every
// pending migration.
func (mg *Migrator) Up(ctx context.Context) (Status, error) {
	if err := mg.recoverDirty(); err != nil {
		return Status{}, err
	}

	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("failed to run migrations: %w", err)
	}
	return mg.Status(ctx)
}

// Down rolls back the given number of applied migrations.
func (mg *Migrator) Down(ctx context.Context, steps int) (Status, error) {
	if steps <= 0 {
		return Status{}, fmt.Errorf("down steps must be > 0, got %d", steps)
	}
	if err := mg.recoverDirty(); err != nil {
		return Status{}, err
	}

	if err := mg.m.Steps(-steps); err != nil {
		return Status{}, fmt.Errorf("failed to roll back %d migrations: %w", steps, err)
	}
	return mg.Status(ctx)
}

func (mg *Migrator) recoverDirty() error {
	version, dirty, err := mg.m.Version()
	if err != nil || !dirty {
		return nil
	}

	slog.Warn("[Migrations] Warehouse schema is dirty, a migration was interrupted",
		"version", version,
		"action", "forcing current version")

	// Every migration is IF NOT EXISTS DDL or an ON CONFLICT seed.
	if err := mg.m.Force(int(version)); err != nil {
		return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
	}
	return nil
}

// RunMigrations reports the schema status and, with autoMigrate set,
// brings it up to date first.
func RunMigrations(ctx context.Context, db *sql.DB, autoMigrate bool) (Status, error) {
	mg, err := Open(ctx, db)
	if err != nil {
		return Status{}, err
	}
	defer mg.Close()

	if !autoMigrate {
		st, err := mg.Status(ctx)
		if err != nil {
			return Status{}, err
		}
		if !st.UpToDate() {
			slog.Warn("[Migrations] Auto-migration disabled with migrations pending",
				"version", st.Version,
				"dirty", st.Dirty,
				"pending", st.Pending)
		}
		return st, nil
	}

	st, err := mg.Up(ctx)
	if err != nil {
		return Status{}, err
	}
	slog.Info("[Migrations] Warehouse schema ready",
		"version", st.Version,
		"latest", st.Latest,
		"encounter_types", st.EncounterTypes)
	return st, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func encounterTypes(ctx context.Context, q queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, queryEncounterTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list encounter types: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan encounter type: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// embeddedVersions lists the versions shipped in MigrationFiles, ascending.
func embeddedVersions() ([]uint, error) {
	src, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return nil, fmt.Errorf("failed to read first migration: %w", err)
	}
	versions := []uint{v}
	for {
		next, err := src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read migration after %d: %w", v, err)
		}
		versions = append(versions, next)
		v = next
	}
}

func pendingVersions(versions []uint, current uint) []uint {
	var pending []uint
	for _, v := range versions {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending
}
