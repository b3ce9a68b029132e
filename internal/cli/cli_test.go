package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carewh-lab/carewh/internal/core/config"
	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage/memory"
	"github.com/carewh-lab/carewh/internal/migrations"
	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seededAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	src      *memory.Source
	wh       *memory.Warehouse
	migrated []MigrateRequest
	opts     *RootOptions
}

func newHarness() *harness {
	h := &harness{src: memory.NewSource(), wh: memory.NewWarehouse()}
	h.src.PutDepartment(source.Department{
		DepartmentID:   1,
		DepartmentName: "Cardiology",
		Change:         source.Change{CreatedAt: seededAt, UpdatedAt: seededAt},
	})
	h.opts = &RootOptions{
		Connect: func(ctx context.Context, cfg *config.Config) (*Stores, error) {
			return &Stores{Source: h.src, Warehouse: h.wh}, nil
		},
		Migrate: func(ctx context.Context, cfg *config.Config, req MigrateRequest) (migrations.Status, error) {
			h.migrated = append(h.migrated, req)
			return migrations.Status{
				Version:        2,
				Latest:         2,
				EncounterTypes: []string{"Outpatient", "Inpatient", "ER"},
			}, nil
		},
	}
	return h
}

func (h *harness) execute(ctx context.Context, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := newRootCommand(h.opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_Success(t *testing.T) {
	h := newHarness()

	out, err := h.execute(context.Background(), "run")

	require.NoError(t, err)
	assert.Contains(t, out, ": DONE (exit 0)")
	assert.Contains(t, out, "dim_department")
	assert.Len(t, h.wh.Departments(), 1)
}

func TestRun_JSONReport(t *testing.T) {
	h := newHarness()

	out, err := h.execute(context.Background(), "run", "--format", "json")
	require.NoError(t, err)

	var report orchestrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, orchestrator.StateDone, report.State)
	assert.Equal(t, 9, report.CommittedStages)
	require.NotNil(t, report.Verification)
}

func TestRun_PartialFailureExitCode(t *testing.T) {
	h := newHarness()
	h.src.FailOn(memory.SelectEncounters, etlerr.Connection("source", sql.ErrConnDone))

	out, err := h.execute(context.Background(), "run")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitPartial, GetExitCode(err))
	assert.Contains(t, out, "FAILED (exit 2)")
	assert.Contains(t, out, "fact_encounters")
}

func TestRun_FailureBeforeCommitExitCode(t *testing.T) {
	h := newHarness()
	h.wh.FailOn(memory.OpValidateSchema, etlerr.SchemaDrift("warehouse", []string{"fact_encounters.claim_status"}))

	_, err := h.execute(context.Background(), "run")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitFailed, GetExitCode(err))
}

func TestRun_ConnectFailure(t *testing.T) {
	h := newHarness()
	h.opts.Connect = func(ctx context.Context, cfg *config.Config) (*Stores, error) {
		return nil, etlerr.Connection("source", errors.New("dial tcp: connection refused"))
	}

	out, err := h.execute(context.Background(), "run")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitFailed, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to connect")
	assert.Contains(t, out, "FAILED (exit 1)")
	assert.Contains(t, out, "Failed stage: INIT (INIT)")
	assert.Contains(t, out, "Error kind:   ConnectionError")
	assert.Contains(t, out, "connection refused")
}

func TestRun_ConnectFailureJSONReport(t *testing.T) {
	h := newHarness()
	h.opts.Connect = func(ctx context.Context, cfg *config.Config) (*Stores, error) {
		return nil, etlerr.Connection("warehouse", errors.New("dial tcp: i/o timeout"))
	}

	out, err := h.execute(context.Background(), "run", "--format", "json")

	require.Error(t, err)
	var report orchestrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, orchestrator.StateFailed, report.State)
	assert.Equal(t, orchestrator.StateInit, report.FailedState)
	assert.Equal(t, etlerr.KindConnection, report.ErrorKind)
	assert.Zero(t, report.CommittedStages)
}

func TestRun_InvalidFormat(t *testing.T) {
	h := newHarness()

	_, err := h.execute(context.Background(), "run", "--format", "xml")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))
}

func TestRun_MissingConfigFile(t *testing.T) {
	h := newHarness()

	_, err := h.execute(context.Background(), "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))
}

func TestRun_InvalidConfigValue(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "carewh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  batch_size: 0\n"), 0o644))

	_, err := h.execute(context.Background(), "run", "--config", path)

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "engine.batch_size")
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness()

	_, err := h.execute(context.Background(), "reload")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))
}

func TestVerify(t *testing.T) {
	h := newHarness()
	_, err := h.execute(context.Background(), "run")
	require.NoError(t, err)

	out, err := h.execute(context.Background(), "verify")

	require.NoError(t, err)
	assert.Contains(t, out, "dim_date")
	assert.Contains(t, out, "etl_metadata")
	assert.Contains(t, out, "dim_department")
}

func TestVerify_Failure(t *testing.T) {
	h := newHarness()
	h.wh.FailOn(memory.OpTableCounts, etlerr.Connection("warehouse", sql.ErrConnDone))

	_, err := h.execute(context.Background(), "verify")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitFailed, GetExitCode(err))
}

func TestMigrate(t *testing.T) {
	h := newHarness()

	out, err := h.execute(context.Background(), "migrate")

	require.NoError(t, err)
	assert.Equal(t, []MigrateRequest{{}}, h.migrated)
	assert.Contains(t, out, "version 2 of 2")
	assert.Contains(t, out, "Encounter types: Outpatient, Inpatient, ER")
	assert.Contains(t, out, "up to date")
}

func TestMigrate_StatusAndDown(t *testing.T) {
	h := newHarness()

	_, err := h.execute(context.Background(), "migrate", "--status")
	require.NoError(t, err)
	_, err = h.execute(context.Background(), "migrate", "--down", "1")
	require.NoError(t, err)

	assert.Equal(t, []MigrateRequest{{StatusOnly: true}, {Down: 1}}, h.migrated)
}

func TestMigrate_InvalidFlags(t *testing.T) {
	h := newHarness()

	_, err := h.execute(context.Background(), "migrate", "--down", "-1")
	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))

	_, err = h.execute(context.Background(), "migrate", "--status", "--down", "1")
	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(err))

	assert.Empty(t, h.migrated)
}

func TestMigrate_Failure(t *testing.T) {
	h := newHarness()
	h.opts.Migrate = func(ctx context.Context, cfg *config.Config, req MigrateRequest) (migrations.Status, error) {
		return migrations.Status{}, errors.New("Dirty database version 1")
	}

	_, err := h.execute(context.Background(), "migrate")

	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitFailed, GetExitCode(err))
}

func TestSchedule_StopsWithContext(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.execute(ctx, "schedule")

	require.NoError(t, err)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, orchestrator.ExitSuccess, GetExitCode(nil))
	assert.Equal(t, orchestrator.ExitPartial, GetExitCode(WrapExitError(orchestrator.ExitPartial, "load run failed", nil)))
	assert.Equal(t, orchestrator.ExitCommandError, GetExitCode(errors.New("unknown flag: --x")))

	wrapped := WrapExitError(orchestrator.ExitFailed, "failed to connect", etlerr.ErrConnection)
	assert.ErrorIs(t, wrapped, etlerr.ErrConnection)
	assert.Equal(t, "failed to connect: "+etlerr.ErrConnection.Error(), wrapped.Error())
}
