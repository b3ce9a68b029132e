// Package mysql reads the operational hospital database.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/go-sql-driver/mysql"
)

const connectPingTimeout = 5 * time.Second

// Options addresses the source database.
type Options struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	BatchSize    int
}

// DSN renders opts as a go-sql-driver DSN. Timestamps are parsed in UTC.
func DSN(opts Options) string {
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Source implements storage.Source for MySQL.
type Source struct {
	db        *sql.DB
	batchSize int
}

// NewSource opens the source database and verifies it is reachable.
func NewSource(opts Options) (*Source, error) {
	db, err := sql.Open("mysql", DSN(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("[MySQL] Connection pool configured",
		"addr", net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		"database", opts.Database,
		"max_open_conns", opts.MaxOpenConns,
		"batch_size", opts.BatchSize)

	pingCtx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, etlerr.Connection("source", err)
	}

	return NewSourceWithDB(db, opts.BatchSize), nil
}

// NewSourceWithDB wraps an open database handle.
func NewSourceWithDB(db *sql.DB, batchSize int) *Source {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Source{db: db, batchSize: batchSize}
}

func (s *Source) Close() error {
	return s.db.Close()
}

func (s *Source) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return etlerr.Connection("source", err)
	}
	return nil
}

// ValidateSchema checks that every table and column the selectors read exists.
func (s *Source) ValidateSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, querySchemaColumns)
	if err != nil {
		return fmt.Errorf("read source schema: %w", classify(err))
	}
	defer rows.Close()

	missing, err := storage.MissingColumns(rows, sourceColumns)
	if err != nil {
		return fmt.Errorf("read source schema: %w", err)
	}
	if len(missing) > 0 {
		return etlerr.SchemaDrift("source", missing)
	}
	return nil
}

var audit = []string{"created_at", "updated_at"}

var sourceColumns = map[string][]string{
	"patients":             append([]string{"patient_id", "first_name", "last_name", "date_of_birth", "gender", "mrn"}, audit...),
	"providers":            append([]string{"provider_id", "first_name", "last_name", "credential", "specialty_id", "department_id"}, audit...),
	"specialties":          append([]string{"specialty_id", "specialty_name", "specialty_code"}, audit...),
	"departments":          append([]string{"department_id", "department_name", "floor", "capacity"}, audit...),
	"diagnoses":            append([]string{"diagnosis_id", "icd10_code", "icd10_description"}, audit...),
	"procedures":           append([]string{"procedure_id", "cpt_code", "cpt_description"}, audit...),
	"encounters":           append([]string{"encounter_id", "patient_id", "provider_id", "department_id", "encounter_type", "encounter_date", "discharge_date"}, audit...),
	"billing":              append([]string{"billing_id", "encounter_id", "claim_amount", "allowed_amount", "claim_date", "claim_status"}, audit...),
	"encounter_diagnoses":  append([]string{"encounter_diagnosis_id", "encounter_id", "diagnosis_id", "diagnosis_sequence"}, audit...),
	"encounter_procedures": append([]string{"encounter_procedure_id", "encounter_id", "procedure_id", "procedure_date"}, audit...),
}

type scanner interface {
	Scan(dest ...any) error
}

// page reads one keyset page into memory so the connection is released
// before the caller applies the rows.
func page[T any](ctx context.Context, db *sql.DB, query string, since time.Time, after int64, limit int,
	scan func(scanner) (T, int64, error)) ([]T, int64, error) {
	rows, err := db.QueryContext(ctx, query, since, since, after, limit)
	if err != nil {
		return nil, after, classify(err)
	}
	defer rows.Close()

	var batch []T
	last := after
	for rows.Next() {
		row, id, err := scan(rows)
		if err != nil {
			return nil, after, fmt.Errorf("scan row: %w", err)
		}
		batch = append(batch, row)
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, after, fmt.Errorf("iterate rows: %w", classify(err))
	}
	return batch, last, nil
}

// selectChanged pages through a selector query. enrich, when set, fills in
// per-batch data before rows are yielded.
func selectChanged[T any](
	ctx context.Context,
	s *Source,
	entity, query string,
	since time.Time,
	scan func(scanner) (T, int64, error),
	enrich func(ctx context.Context, batch []T) error,
) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		after := int64(0)
		for {
			batch, last, err := page(ctx, s.db, query, since, after, s.batchSize, scan)
			if err != nil {
				yield(zero, fmt.Errorf("select %s after %d: %w", entity, after, err))
				return
			}
			if enrich != nil && len(batch) > 0 {
				if err := enrich(ctx, batch); err != nil {
					yield(zero, fmt.Errorf("select %s after %d: %w", entity, after, err))
					return
				}
			}
			slog.Debug("[MySQL] Page selected", "entity", entity, "after", after, "rows", len(batch))

			for _, row := range batch {
				if !yield(row, nil) {
					return
				}
			}
			if len(batch) < s.batchSize {
				return
			}
			after = last
		}
	}
}

func scanChange(c *source.Change) []any {
	return []any{&c.CreatedAt, &c.UpdatedAt}
}

func (s *Source) Patients(ctx context.Context, since time.Time) iter.Seq2[source.Patient, error] {
	return selectChanged(ctx, s, "patients", queryPatients, since, func(r scanner) (source.Patient, int64, error) {
		var p source.Patient
		err := r.Scan(append([]any{&p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.MRN}, scanChange(&p.Change)...)...)
		return p, p.PatientID, err
	}, nil)
}

func (s *Source) Providers(ctx context.Context, since time.Time) iter.Seq2[source.Provider, error] {
	return selectChanged(ctx, s, "providers", queryProviders, since, func(r scanner) (source.Provider, int64, error) {
		var p source.Provider
		err := r.Scan(append([]any{
			&p.ProviderID, &p.FirstName, &p.LastName, &p.Credential,
			&p.SpecialtyID, &p.SpecialtyName, &p.SpecialtyCode,
			&p.DepartmentID, &p.DepartmentName,
		}, scanChange(&p.Change)...)...)
		return p, p.ProviderID, err
	}, nil)
}

func (s *Source) Departments(ctx context.Context, since time.Time) iter.Seq2[source.Department, error] {
	return selectChanged(ctx, s, "departments", queryDepartments, since, func(r scanner) (source.Department, int64, error) {
		var d source.Department
		err := r.Scan(append([]any{&d.DepartmentID, &d.DepartmentName, &d.Floor, &d.Capacity}, scanChange(&d.Change)...)...)
		return d, d.DepartmentID, err
	}, nil)
}

func (s *Source) Diagnoses(ctx context.Context, since time.Time) iter.Seq2[source.Diagnosis, error] {
	return selectChanged(ctx, s, "diagnoses", queryDiagnoses, since, func(r scanner) (source.Diagnosis, int64, error) {
		var d source.Diagnosis
		err := r.Scan(append([]any{&d.DiagnosisID, &d.ICD10Code, &d.ICD10Description}, scanChange(&d.Change)...)...)
		return d, d.DiagnosisID, err
	}, nil)
}

func (s *Source) Procedures(ctx context.Context, since time.Time) iter.Seq2[source.Procedure, error] {
	return selectChanged(ctx, s, "procedures", queryProcedures, since, func(r scanner) (source.Procedure, int64, error) {
		var p source.Procedure
		err := r.Scan(append([]any{&p.ProcedureID, &p.CPTCode, &p.CPTDescription}, scanChange(&p.Change)...)...)
		return p, p.ProcedureID, err
	}, nil)
}

func (s *Source) Encounters(ctx context.Context, since time.Time) iter.Seq2[source.Encounter, error] {
	return selectChanged(ctx, s, "encounters", queryEncounters, since, func(r scanner) (source.Encounter, int64, error) {
		var e source.Encounter
		err := r.Scan(append([]any{
			&e.EncounterID, &e.PatientID, &e.ProviderID, &e.DepartmentID, &e.EncounterType,
			&e.EncounterDate, &e.DischargeDate,
		}, scanChange(&e.Change)...)...)
		return e, e.EncounterID, err
	}, s.enrichEncounters)
}

// enrichEncounters fills child counts and billing for one page of encounters.
func (s *Source) enrichEncounters(ctx context.Context, batch []source.Encounter) error {
	ids := make([]any, len(batch))
	index := make(map[int64]*source.Encounter, len(batch))
	for i := range batch {
		ids[i] = batch[i].EncounterID
		index[batch[i].EncounterID] = &batch[i]
	}
	in := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	diagnoses, err := s.counts(ctx, fmt.Sprintf(queryDiagnosisCounts, in), ids)
	if err != nil {
		return fmt.Errorf("diagnosis counts: %w", err)
	}
	procedures, err := s.counts(ctx, fmt.Sprintf(queryProcedureCounts, in), ids)
	if err != nil {
		return fmt.Errorf("procedure counts: %w", err)
	}
	for id, e := range index {
		e.DiagnosisCount = diagnoses[id]
		e.ProcedureCount = procedures[id]
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(queryEncounterBilling, in), ids...)
	if err != nil {
		return fmt.Errorf("billing: %w", classify(err))
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return fmt.Errorf("billing: scan row: %w", err)
		}
		if e := index[b.EncounterID]; e != nil && e.Billing == nil {
			e.Billing = &b
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("billing: iterate rows: %w", classify(err))
	}
	return nil
}

func (s *Source) counts(ctx context.Context, query string, ids []any) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counts, nil
}

func scanBilling(r scanner) (source.Billing, error) {
	var b source.Billing
	err := r.Scan(append([]any{
		&b.BillingID, &b.EncounterID, &b.ClaimAmount, &b.AllowedAmount, &b.ClaimDate, &b.ClaimStatus,
	}, scanChange(&b.Change)...)...)
	return b, err
}

func (s *Source) Billing(ctx context.Context, since time.Time) iter.Seq2[source.Billing, error] {
	return selectChanged(ctx, s, "billing", queryBilling, since, func(r scanner) (source.Billing, int64, error) {
		b, err := scanBilling(r)
		return b, b.BillingID, err
	}, nil)
}

func (s *Source) EncounterDiagnoses(ctx context.Context, since time.Time) iter.Seq2[source.EncounterDiagnosis, error] {
	return selectChanged(ctx, s, "encounter_diagnoses", queryEncounterDiagnoses, since, func(r scanner) (source.EncounterDiagnosis, int64, error) {
		var d source.EncounterDiagnosis
		err := r.Scan(append([]any{&d.EncounterDiagnosisID, &d.EncounterID, &d.DiagnosisID, &d.Sequence}, scanChange(&d.Change)...)...)
		return d, d.EncounterDiagnosisID, err
	}, nil)
}

func (s *Source) EncounterProcedures(ctx context.Context, since time.Time) iter.Seq2[source.EncounterProcedure, error] {
	return selectChanged(ctx, s, "encounter_procedures", queryEncounterProcedures, since, func(r scanner) (source.EncounterProcedure, int64, error) {
		var p source.EncounterProcedure
		err := r.Scan(append([]any{&p.EncounterProcedureID, &p.EncounterID, &p.ProcedureID, &p.ProcedureDate}, scanChange(&p.Change)...)...)
		return p, p.EncounterProcedureID, err
	}, nil)
}
