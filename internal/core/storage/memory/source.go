package memory

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/carewh-lab/carewh/internal/core/source"
)

// Source selector names accepted by Source.FailOn, in addition to OpPing
// and OpValidateSchema.
const (
	SelectPatients            = "patients"
	SelectProviders           = "providers"
	SelectDepartments         = "departments"
	SelectDiagnoses           = "diagnoses"
	SelectProcedures          = "procedures"
	SelectEncounters          = "encounters"
	SelectBilling             = "billing"
	SelectEncounterDiagnoses  = "encounter_diagnoses"
	SelectEncounterProcedures = "encounter_procedures"
)

// Source is an in-memory storage.Source. Providers are stored already joined
// with their specialty and department.
type Source struct {
	mu                  sync.RWMutex
	patients            map[int64]source.Patient
	providers           map[int64]source.Provider
	departments         map[int64]source.Department
	diagnoses           map[int64]source.Diagnosis
	procedures          map[int64]source.Procedure
	encounters          map[int64]source.Encounter
	billing             map[int64]source.Billing
	encounterDiagnoses  map[int64]source.EncounterDiagnosis
	encounterProcedures map[int64]source.EncounterProcedure
	failures            map[string]error
}

func NewSource() *Source {
	return &Source{
		patients:            make(map[int64]source.Patient),
		providers:           make(map[int64]source.Provider),
		departments:         make(map[int64]source.Department),
		diagnoses:           make(map[int64]source.Diagnosis),
		procedures:          make(map[int64]source.Procedure),
		encounters:          make(map[int64]source.Encounter),
		billing:             make(map[int64]source.Billing),
		encounterDiagnoses:  make(map[int64]source.EncounterDiagnosis),
		encounterProcedures: make(map[int64]source.EncounterProcedure),
		failures:            make(map[string]error),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (s *Source) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Source) PutPatient(p source.Patient) { put(s, s.patients, p.PatientID, p) }

func (s *Source) PutProvider(p source.Provider) { put(s, s.providers, p.ProviderID, p) }

func (s *Source) PutDepartment(d source.Department) { put(s, s.departments, d.DepartmentID, d) }

func (s *Source) PutDiagnosis(d source.Diagnosis) { put(s, s.diagnoses, d.DiagnosisID, d) }

func (s *Source) PutProcedure(p source.Procedure) { put(s, s.procedures, p.ProcedureID, p) }

// PutEncounter stores e. Child counts and billing are computed on read.
func (s *Source) PutEncounter(e source.Encounter) { put(s, s.encounters, e.EncounterID, e) }

func (s *Source) PutBilling(b source.Billing) { put(s, s.billing, b.BillingID, b) }

func (s *Source) PutEncounterDiagnosis(d source.EncounterDiagnosis) {
	put(s, s.encounterDiagnoses, d.EncounterDiagnosisID, d)
}

func (s *Source) PutEncounterProcedure(p source.EncounterProcedure) {
	put(s, s.encounterProcedures, p.EncounterProcedureID, p)
}

func put[V any](s *Source, m map[int64]V, id int64, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m[id] = v
}

func (s *Source) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[OpPing]
}

func (s *Source) ValidateSchema(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[OpValidateSchema]
}

func (s *Source) Patients(ctx context.Context, since time.Time) iter.Seq2[source.Patient, error] {
	return selectChanged(s, SelectPatients, s.patients, since, func(p source.Patient) source.Change { return p.Change })
}

func (s *Source) Providers(ctx context.Context, since time.Time) iter.Seq2[source.Provider, error] {
	return selectChanged(s, SelectProviders, s.providers, since, func(p source.Provider) source.Change { return p.Change })
}

func (s *Source) Departments(ctx context.Context, since time.Time) iter.Seq2[source.Department, error] {
	return selectChanged(s, SelectDepartments, s.departments, since, func(d source.Department) source.Change { return d.Change })
}

func (s *Source) Diagnoses(ctx context.Context, since time.Time) iter.Seq2[source.Diagnosis, error] {
	return selectChanged(s, SelectDiagnoses, s.diagnoses, since, func(d source.Diagnosis) source.Change { return d.Change })
}

func (s *Source) Procedures(ctx context.Context, since time.Time) iter.Seq2[source.Procedure, error] {
	return selectChanged(s, SelectProcedures, s.procedures, since, func(p source.Procedure) source.Change { return p.Change })
}

func (s *Source) Encounters(ctx context.Context, since time.Time) iter.Seq2[source.Encounter, error] {
	return func(yield func(source.Encounter, error) bool) {
		for e, err := range selectChanged(s, SelectEncounters, s.encounters, since, func(e source.Encounter) source.Change { return e.Change }) {
			if err != nil {
				yield(source.Encounter{}, err)
				return
			}
			if !yield(s.enrich(e), nil) {
				return
			}
		}
	}
}

func (s *Source) enrich(e source.Encounter) source.Encounter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e.DiagnosisCount, e.ProcedureCount, e.Billing = 0, 0, nil
	for _, d := range s.encounterDiagnoses {
		if d.EncounterID == e.EncounterID {
			e.DiagnosisCount++
		}
	}
	for _, p := range s.encounterProcedures {
		if p.EncounterID == e.EncounterID {
			e.ProcedureCount++
		}
	}
	for _, id := range slices.Sorted(maps.Keys(s.billing)) {
		if b := s.billing[id]; b.EncounterID == e.EncounterID {
			e.Billing = &b
			break
		}
	}
	return e
}

func (s *Source) Billing(ctx context.Context, since time.Time) iter.Seq2[source.Billing, error] {
	return selectChanged(s, SelectBilling, s.billing, since, func(b source.Billing) source.Change { return b.Change })
}

func (s *Source) EncounterDiagnoses(ctx context.Context, since time.Time) iter.Seq2[source.EncounterDiagnosis, error] {
	return selectChanged(s, SelectEncounterDiagnoses, s.encounterDiagnoses, since,
		func(d source.EncounterDiagnosis) source.Change { return d.Change })
}

func (s *Source) EncounterProcedures(ctx context.Context, since time.Time) iter.Seq2[source.EncounterProcedure, error] {
	return selectChanged(s, SelectEncounterProcedures, s.encounterProcedures, since,
		func(p source.EncounterProcedure) source.Change { return p.Change })
}

// selectChanged snapshots the matching rows when the sequence is ranged over,
// ordered by natural key.
func selectChanged[V any](s *Source, op string, m map[int64]V, since time.Time, change func(V) source.Change) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		s.mu.RLock()
		if err := s.failures[op]; err != nil {
			s.mu.RUnlock()
			var zero V
			yield(zero, err)
			return
		}
		ids := slices.Sorted(maps.Keys(m))
		rows := make([]V, 0, len(ids))
		for _, id := range ids {
			if change(m[id]).ChangedSince(since) {
				rows = append(rows, m[id])
			}
		}
		s.mu.RUnlock()

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}
