package storage

import (
	"context"
	"iter"
	"time"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	"github.com/carewh-lab/carewh/internal/core/fact"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/watermark"
)

// Source is the operational store. Each selector returns the rows whose
// created_at or updated_at is at or after since, ordered by natural key.
// Sequences are lazy and can be ranged over again to restart the read.
type Source interface {
	Ping(ctx context.Context) error
	ValidateSchema(ctx context.Context) error

	Patients(ctx context.Context, since time.Time) iter.Seq2[source.Patient, error]
	// Providers also yields providers whose specialty or department changed.
	Providers(ctx context.Context, since time.Time) iter.Seq2[source.Provider, error]
	Departments(ctx context.Context, since time.Time) iter.Seq2[source.Department, error]
	Diagnoses(ctx context.Context, since time.Time) iter.Seq2[source.Diagnosis, error]
	Procedures(ctx context.Context, since time.Time) iter.Seq2[source.Procedure, error]
	// Encounters carries child counts and billing for every encounter yielded.
	Encounters(ctx context.Context, since time.Time) iter.Seq2[source.Encounter, error]
	Billing(ctx context.Context, since time.Time) iter.Seq2[source.Billing, error]
	EncounterDiagnoses(ctx context.Context, since time.Time) iter.Seq2[source.EncounterDiagnosis, error]
	EncounterProcedures(ctx context.Context, since time.Time) iter.Seq2[source.EncounterProcedure, error]
}

// Warehouse is the star-schema sink.
type Warehouse interface {
	Ping(ctx context.Context) error
	ValidateSchema(ctx context.Context) error

	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Watermarks(ctx context.Context) ([]watermark.Watermark, error)
	TableCounts(ctx context.Context) ([]TableCount, error)

	// AcquireRunLock takes the warehouse-wide run lock. It returns
	// errors.ErrRunInProgress when another run holds it.
	AcquireRunLock(ctx context.Context) (release func() error, err error)
}

// Tx is the transactional view of the warehouse used by one load stage.
type Tx interface {
	Watermarks() WatermarkStore

	Patients() DimensionStore[dimension.PatientRow]
	Providers() DimensionStore[dimension.ProviderRow]
	Departments() DimensionStore[dimension.DepartmentRow]
	Diagnoses() DimensionStore[dimension.DiagnosisRow]
	Procedures() DimensionStore[dimension.ProcedureRow]

	// EncounterTypeKey resolves a seeded encounter type by name.
	EncounterTypeKey(ctx context.Context, name string) (int64, bool, error)
	// EnsureDate inserts the dim_date row if it is missing.
	EnsureDate(ctx context.Context, d dimension.Date) error

	Facts() FactStore
	Bridges() BridgeStore
}

// WatermarkStore reads and advances load unit watermarks.
type WatermarkStore interface {
	// Get returns the epoch watermark for a unit that was never set.
	Get(ctx context.Context, unit string) (watermark.Watermark, error)
	// Set upserts w. The stored timestamp never decreases.
	Set(ctx context.Context, w watermark.Watermark) error
}

// DimensionStore is one dimension table.
type DimensionStore[R dimension.Row] interface {
	// Current returns the current version for naturalKey.
	Current(ctx context.Context, naturalKey int64) (dimension.Version[R], bool, error)

	// Upsert overwrites an SCD1 row by natural key and returns its surrogate key.
	Upsert(ctx context.Context, row R) (key int64, inserted bool, err error)

	// Insert opens a new SCD2 version running from effective to EndOfTime.
	Insert(ctx context.Context, row R, effective time.Time) (int64, error)
	// Close ends the current SCD2 version key at end.
	Close(ctx context.Context, key int64, end time.Time) error
}

// FactStore is fact_encounters.
type FactStore interface {
	// Upsert inserts f or, on an existing encounter_id, updates only the
	// billing measures.
	Upsert(ctx context.Context, f fact.Encounter) (key int64, inserted bool, err error)
	Key(ctx context.Context, encounterID int64) (int64, bool, error)
	// PatchBilling sets billing measures on a fact still at the sentinel.
	// It reports false when no such fact exists.
	PatchBilling(ctx context.Context, encounterID int64, b fact.Billing) (bool, error)
}

// BridgeStore holds the encounter bridges. Inserting an existing pair is a no-op.
type BridgeStore interface {
	InsertDiagnosis(ctx context.Context, b fact.DiagnosisBridge) (inserted bool, err error)
	InsertProcedure(ctx context.Context, b fact.ProcedureBridge) (inserted bool, err error)
}

// TableCount is one line of the verification report.
type TableCount struct {
	Table string `json:"table" yaml:"table"`
	Rows  int64  `json:"rows" yaml:"rows"`
}

// WarehouseTables lists the tables counted by the verification report.
var WarehouseTables = []string{
	"dim_date",
	"dim_patient",
	"dim_provider",
	"dim_department",
	"dim_encounter_type",
	"dim_diagnosis",
	"dim_procedure",
	"fact_encounters",
	"bridge_encounter_diagnosis",
	"bridge_encounter_procedure",
	"etl_metadata",
}
