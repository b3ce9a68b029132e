// Package memory provides in-memory stores for tests and local dry runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/fact"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/carewh-lab/carewh/internal/core/watermark"
)

// Operation names accepted by FailOn.
const (
	OpPing            = "ping"
	OpValidateSchema  = "validate_schema"
	OpWatermarkSet    = "watermarks.set"
	OpDimensionWrite  = "dimension.write"
	OpFactUpsert      = "facts.upsert"
	OpFactPatch       = "facts.patch"
	OpBridgeDiagnosis = "bridges.diagnosis"
	OpBridgeProcedure = "bridges.procedure"
	OpTableCounts     = "table_counts"
)

// Warehouse is an in-memory storage.Warehouse. Each transaction works on a
// copy of the committed state, so a failed stage leaves nothing behind.
// Surrogate key sequences are not rolled back.
type Warehouse struct {
	mu       sync.Mutex
	state    *warehouseState
	failures map[string]error
	locked   bool
}

type warehouseState struct {
	watermarks     map[string]watermark.Watermark
	patients       *dimTable[dimension.PatientRow]
	providers      *dimTable[dimension.ProviderRow]
	departments    *dimTable[dimension.DepartmentRow]
	diagnoses      *dimTable[dimension.DiagnosisRow]
	procedures     *dimTable[dimension.ProcedureRow]
	encounterTypes map[string]int64
	dates          map[int]dimension.Date
	facts          map[int64]fact.Encounter
	factSeq        *int64
	diagBridges    map[[2]int64]fact.DiagnosisBridge
	procBridges    map[[2]int64]fact.ProcedureBridge
}

// NewWarehouse returns an empty warehouse with the encounter types seeded.
func NewWarehouse() *Warehouse {
	var factSeq int64
	return &Warehouse{
		state: &warehouseState{
			watermarks:  make(map[string]watermark.Watermark),
			patients:    newDimTable[dimension.PatientRow](),
			providers:   newDimTable[dimension.ProviderRow](),
			departments: newDimTable[dimension.DepartmentRow](),
			diagnoses:   newDimTable[dimension.DiagnosisRow](),
			procedures:  newDimTable[dimension.ProcedureRow](),
			encounterTypes: map[string]int64{
				"Outpatient": 1,
				"Inpatient":  2,
				"ER":         3,
			},
			dates:       make(map[int]dimension.Date),
			facts:       make(map[int64]fact.Encounter),
			factSeq:     &factSeq,
			diagBridges: make(map[[2]int64]fact.DiagnosisBridge),
			procBridges: make(map[[2]int64]fact.ProcedureBridge),
		},
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (w *Warehouse) FailOn(op string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failures, op)
		return
	}
	w.failures[op] = err
}

func (w *Warehouse) Ping(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[OpPing]
}

func (w *Warehouse) ValidateSchema(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[OpValidateSchema]
}

// InTx holds the warehouse lock for the whole transaction.
func (w *Warehouse) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx := &memTx{state: w.state.clone(), failures: maps.Clone(w.failures)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.state = tx.state
	return nil
}

func (w *Warehouse) Watermarks(ctx context.Context) ([]watermark.Watermark, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.state.watermarks, func(a, b watermark.Watermark) int {
		return cmp.Compare(a.LoadUnit, b.LoadUnit)
	}), nil
}

func (w *Warehouse) TableCounts(ctx context.Context) ([]storage.TableCount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failures[OpTableCounts]; err != nil {
		return nil, err
	}
	s := w.state
	rows := map[string]int{
		"dim_date":                   len(s.dates),
		"dim_patient":                len(s.patients.versions),
		"dim_provider":               len(s.providers.versions),
		"dim_department":             len(s.departments.versions),
		"dim_encounter_type":         len(s.encounterTypes),
		"dim_diagnosis":              len(s.diagnoses.versions),
		"dim_procedure":              len(s.procedures.versions),
		"fact_encounters":            len(s.facts),
		"bridge_encounter_diagnosis": len(s.diagBridges),
		"bridge_encounter_procedure": len(s.procBridges),
		"etl_metadata":               len(s.watermarks),
	}
	counts := make([]storage.TableCount, 0, len(storage.WarehouseTables))
	for _, table := range storage.WarehouseTables {
		counts = append(counts, storage.TableCount{Table: table, Rows: int64(rows[table])})
	}
	return counts, nil
}

func (w *Warehouse) AcquireRunLock(ctx context.Context) (func() error, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locked {
		return nil, etlerr.ErrRunInProgress
	}
	w.locked = true
	return func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.locked = false
		return nil
	}, nil
}

// Patients returns every dim_patient version in key order.
func (w *Warehouse) Patients() []dimension.Version[dimension.PatientRow] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.state.patients.versions)
}

func (w *Warehouse) Providers() []dimension.Version[dimension.ProviderRow] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.state.providers.versions)
}

func (w *Warehouse) Departments() []dimension.Version[dimension.DepartmentRow] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.state.departments.versions)
}

func (w *Warehouse) Diagnoses() []dimension.Version[dimension.DiagnosisRow] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.state.diagnoses.versions)
}

func (w *Warehouse) Procedures() []dimension.Version[dimension.ProcedureRow] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.state.procedures.versions)
}

// Facts returns fact rows ordered by encounter_id.
func (w *Warehouse) Facts() []fact.Encounter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.state.facts, func(a, b fact.Encounter) int {
		return cmp.Compare(a.EncounterID, b.EncounterID)
	})
}

func (w *Warehouse) DiagnosisBridges() []fact.DiagnosisBridge {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.state.diagBridges, func(a, b fact.DiagnosisBridge) int {
		return cmp.Or(cmp.Compare(a.EncounterKey, b.EncounterKey), cmp.Compare(a.DiagnosisKey, b.DiagnosisKey))
	})
}

func (w *Warehouse) ProcedureBridges() []fact.ProcedureBridge {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.state.procBridges, func(a, b fact.ProcedureBridge) int {
		return cmp.Or(cmp.Compare(a.EncounterKey, b.EncounterKey), cmp.Compare(a.ProcedureKey, b.ProcedureKey))
	})
}

// Dates returns the ensured dim_date rows ordered by key.
func (w *Warehouse) Dates() []dimension.Date {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.state.dates, func(a, b dimension.Date) int {
		return cmp.Compare(a.DateKey, b.DateKey)
	})
}

func (s *warehouseState) clone() *warehouseState {
	return &warehouseState{
		watermarks:     maps.Clone(s.watermarks),
		patients:       s.patients.clone(),
		providers:      s.providers.clone(),
		departments:    s.departments.clone(),
		diagnoses:      s.diagnoses.clone(),
		procedures:     s.procedures.clone(),
		encounterTypes: s.encounterTypes,
		dates:          maps.Clone(s.dates),
		facts:          maps.Clone(s.facts),
		factSeq:        s.factSeq,
		diagBridges:    maps.Clone(s.diagBridges),
		procBridges:    maps.Clone(s.procBridges),
	}
}

type memTx struct {
	state    *warehouseState
	failures map[string]error
}

func (t *memTx) fail(op string) error {
	if err := t.failures[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *memTx) Watermarks() storage.WatermarkStore { return watermarkStore{t} }

func (t *memTx) Patients() storage.DimensionStore[dimension.PatientRow] {
	return dimStore[dimension.PatientRow]{tx: t, table: t.state.patients}
}

func (t *memTx) Providers() storage.DimensionStore[dimension.ProviderRow] {
	return dimStore[dimension.ProviderRow]{tx: t, table: t.state.providers}
}

func (t *memTx) Departments() storage.DimensionStore[dimension.DepartmentRow] {
	return dimStore[dimension.DepartmentRow]{tx: t, table: t.state.departments}
}

func (t *memTx) Diagnoses() storage.DimensionStore[dimension.DiagnosisRow] {
	return dimStore[dimension.DiagnosisRow]{tx: t, table: t.state.diagnoses}
}

func (t *memTx) Procedures() storage.DimensionStore[dimension.ProcedureRow] {
	return dimStore[dimension.ProcedureRow]{tx: t, table: t.state.procedures}
}

func (t *memTx) EncounterTypeKey(ctx context.Context, name string) (int64, bool, error) {
	key, ok := t.state.encounterTypes[name]
	return key, ok, nil
}

func (t *memTx) EnsureDate(ctx context.Context, d dimension.Date) error {
	if _, ok := t.state.dates[d.DateKey]; !ok {
		t.state.dates[d.DateKey] = d
	}
	return nil
}

func (t *memTx) Facts() storage.FactStore { return factStore{t} }

func (t *memTx) Bridges() storage.BridgeStore { return bridgeStore{t} }

type watermarkStore struct{ tx *memTx }

func (s watermarkStore) Get(ctx context.Context, unit string) (watermark.Watermark, error) {
	if w, ok := s.tx.state.watermarks[unit]; ok {
		return w, nil
	}
	return watermark.Initial(unit), nil
}

func (s watermarkStore) Set(ctx context.Context, w watermark.Watermark) error {
	if err := s.tx.fail(OpWatermarkSet); err != nil {
		return err
	}
	if prev, ok := s.tx.state.watermarks[w.LoadUnit]; ok && prev.LastLoad.After(w.LastLoad) {
		w.LastLoad = prev.LastLoad
	}
	s.tx.state.watermarks[w.LoadUnit] = w
	return nil
}

// dimTable keeps versions in surrogate key order.
type dimTable[R dimension.Row] struct {
	versions []dimension.Version[R]
	seq      *int64
}

func newDimTable[R dimension.Row]() *dimTable[R] {
	var seq int64
	return &dimTable[R]{seq: &seq}
}

func (d *dimTable[R]) clone() *dimTable[R] {
	return &dimTable[R]{versions: slices.Clone(d.versions), seq: d.seq}
}

func (d *dimTable[R]) nextKey() int64 {
	*d.seq++
	return *d.seq
}

type dimStore[R dimension.Row] struct {
	tx    *memTx
	table *dimTable[R]
}

func (s dimStore[R]) Current(ctx context.Context, naturalKey int64) (dimension.Version[R], bool, error) {
	for _, v := range s.table.versions {
		if v.IsCurrent && v.Row.NaturalKey() == naturalKey {
			return v, true, nil
		}
	}
	return dimension.Version[R]{}, false, nil
}

func (s dimStore[R]) Upsert(ctx context.Context, row R) (int64, bool, error) {
	if err := s.tx.fail(OpDimensionWrite); err != nil {
		return 0, false, err
	}
	for i, v := range s.table.versions {
		if v.Row.NaturalKey() == row.NaturalKey() {
			s.table.versions[i].Row = row
			return v.Key, false, nil
		}
	}
	key := s.table.nextKey()
	s.table.versions = append(s.table.versions, dimension.Version[R]{Key: key, Row: row, IsCurrent: true})
	return key, true, nil
}

func (s dimStore[R]) Insert(ctx context.Context, row R, effective time.Time) (int64, error) {
	if err := s.tx.fail(OpDimensionWrite); err != nil {
		return 0, err
	}
	for _, v := range s.table.versions {
		if v.IsCurrent && v.Row.NaturalKey() == row.NaturalKey() {
			return 0, etlerr.New(etlerr.KindConstraint,
				fmt.Errorf("natural key %d already has current version %d", row.NaturalKey(), v.Key))
		}
	}
	key := s.table.nextKey()
	s.table.versions = append(s.table.versions, dimension.Version[R]{
		Key:           key,
		Row:           row,
		EffectiveDate: effective,
		EndDate:       dimension.EndOfTime,
		IsCurrent:     true,
	})
	return key, nil
}

func (s dimStore[R]) Close(ctx context.Context, key int64, end time.Time) error {
	if err := s.tx.fail(OpDimensionWrite); err != nil {
		return err
	}
	for i, v := range s.table.versions {
		if v.Key == key && v.IsCurrent {
			s.table.versions[i].EndDate = end
			s.table.versions[i].IsCurrent = false
			return nil
		}
	}
	return fmt.Errorf("close version %d: no current version", key)
}

type factStore struct{ tx *memTx }

func (s factStore) Upsert(ctx context.Context, f fact.Encounter) (int64, bool, error) {
	if err := s.tx.fail(OpFactUpsert); err != nil {
		return 0, false, err
	}
	if existing, ok := s.tx.state.facts[f.EncounterID]; ok {
		existing.DischargeDateKey = f.DischargeDateKey
		existing.DischargeDate = f.DischargeDate
		existing.LengthOfStayDays = f.LengthOfStayDays
		existing.DiagnosisCount = f.DiagnosisCount
		existing.ProcedureCount = f.ProcedureCount
		existing.Billing = f.Billing
		s.tx.state.facts[f.EncounterID] = existing
		return existing.Key, false, nil
	}
	*s.tx.state.factSeq++
	f.Key = *s.tx.state.factSeq
	s.tx.state.facts[f.EncounterID] = f
	return f.Key, true, nil
}

func (s factStore) Key(ctx context.Context, encounterID int64) (int64, bool, error) {
	f, ok := s.tx.state.facts[encounterID]
	return f.Key, ok, nil
}

func (s factStore) PatchBilling(ctx context.Context, encounterID int64, b fact.Billing) (bool, error) {
	if err := s.tx.fail(OpFactPatch); err != nil {
		return false, err
	}
	f, ok := s.tx.state.facts[encounterID]
	if !ok || !f.IsSentinel() {
		return false, nil
	}
	f.Billing = b
	s.tx.state.facts[encounterID] = f
	return true, nil
}

type bridgeStore struct{ tx *memTx }

func (s bridgeStore) InsertDiagnosis(ctx context.Context, b fact.DiagnosisBridge) (bool, error) {
	if err := s.tx.fail(OpBridgeDiagnosis); err != nil {
		return false, err
	}
	pair := [2]int64{b.EncounterKey, b.DiagnosisKey}
	if _, ok := s.tx.state.diagBridges[pair]; ok {
		return false, nil
	}
	s.tx.state.diagBridges[pair] = b
	return true, nil
}

func (s bridgeStore) InsertProcedure(ctx context.Context, b fact.ProcedureBridge) (bool, error) {
	if err := s.tx.fail(OpBridgeProcedure); err != nil {
		return false, err
	}
	pair := [2]int64{b.EncounterKey, b.ProcedureKey}
	if _, ok := s.tx.state.procBridges[pair]; ok {
		return false, nil
	}
	s.tx.state.procBridges[pair] = b
	return true, nil
}

func sortedValues[K comparable, V any](m map[K]V, compare func(a, b V) int) []V {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, compare)
	return out
}
