package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/carewh-lab/carewh/internal/core/dimension"
)

// dimTable maps one dimension row type onto its warehouse table.
// values and dest list the natural key first, then the attribute columns.
type dimTable[R dimension.Row] struct {
	table     string
	key       string
	natural   string
	columns   []string
	versioned bool
	values    func(R) []any
	dest      func(*R) []any

	queryCurrent string
	queryUpsert  string
	queryInsert  string
	queryClose   string
}

func newDimTable[R dimension.Row](
	table, key, natural string,
	versioned bool,
	columns []string,
	values func(R) []any,
	dest func(*R) []any,
) *dimTable[R] {
	t := &dimTable[R]{
		table:     table,
		key:       key,
		natural:   natural,
		columns:   columns,
		versioned: versioned,
		values:    values,
		dest:      dest,
	}

	all := append([]string{natural}, columns...)
	selectCols := key + ", " + strings.Join(all, ", ")
	if versioned {
		selectCols += ", effective_date, end_date, is_current"
		t.queryCurrent = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND is_current", selectCols, table, natural)
	} else {
		t.queryCurrent = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", selectCols, table, natural)
	}

	sets := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = NOW()")
	t.queryUpsert = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s, (xmax = 0) AS inserted",
		table, strings.Join(all, ", "), placeholders(1, len(all)), natural, strings.Join(sets, ", "), key)

	t.queryInsert = fmt.Sprintf(
		"INSERT INTO %s (%s, effective_date, end_date, is_current) VALUES (%s, TRUE) RETURNING %s",
		table, strings.Join(all, ", "), placeholders(1, len(all)+2), key)

	t.queryClose = fmt.Sprintf(
		"UPDATE %s SET end_date = $2, is_current = FALSE, updated_at = NOW() WHERE %s = $1 AND is_current",
		table, key)

	return t
}

// placeholders returns "$from, ..., $(from+n-1)".
func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ", ")
}

// expectedColumns lists every column the adapter reads or writes.
func (t *dimTable[R]) expectedColumns() []string {
	cols := append([]string{t.key, t.natural}, t.columns...)
	if t.versioned {
		cols = append(cols, "effective_date", "end_date", "is_current")
	}
	return cols
}

type dimStore[R dimension.Row] struct {
	tx *sql.Tx
	t  *dimTable[R]
}

func (s dimStore[R]) Current(ctx context.Context, naturalKey int64) (dimension.Version[R], bool, error) {
	var v dimension.Version[R]
	dest := append([]any{&v.Key}, s.t.dest(&v.Row)...)
	if s.t.versioned {
		dest = append(dest, &v.EffectiveDate, &v.EndDate, &v.IsCurrent)
	}

	err := s.tx.QueryRowContext(ctx, s.t.queryCurrent, naturalKey).Scan(dest...)
	if err == sql.ErrNoRows {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("%s: read current %d: %w", s.t.table, naturalKey, classify(err))
	}
	if !s.t.versioned {
		v.IsCurrent = true
	}
	return v, true, nil
}

func (s dimStore[R]) Upsert(ctx context.Context, row R) (int64, bool, error) {
	var (
		key      int64
		inserted bool
	)
	err := s.tx.QueryRowContext(ctx, s.t.queryUpsert, s.t.values(row)...).Scan(&key, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("%s: upsert %d: %w", s.t.table, row.NaturalKey(), classify(err))
	}
	return key, inserted, nil
}

func (s dimStore[R]) Insert(ctx context.Context, row R, effective time.Time) (int64, error) {
	args := append(s.t.values(row), effective, dimension.EndOfTime)
	var key int64
	if err := s.tx.QueryRowContext(ctx, s.t.queryInsert, args...).Scan(&key); err != nil {
		return 0, fmt.Errorf("%s: insert %d: %w", s.t.table, row.NaturalKey(), classify(err))
	}
	return key, nil
}

func (s dimStore[R]) Close(ctx context.Context, key int64, end time.Time) error {
	result, err := s.tx.ExecContext(ctx, s.t.queryClose, key, end)
	if err != nil {
		return fmt.Errorf("%s: close version %d: %w", s.t.table, key, classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: close version %d: %w", s.t.table, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: close version %d: no current row", s.t.table, key)
	}
	return nil
}

var patientTable = newDimTable("dim_patient", "patient_key", "patient_id", true,
	[]string{"first_name", "last_name", "full_name", "date_of_birth", "gender", "gender_description", "age", "age_group", "mrn"},
	func(r dimension.PatientRow) []any {
		return []any{r.PatientID, r.FirstName, r.LastName, r.FullName, r.DateOfBirth, r.Gender, r.GenderDescription, r.Age, r.AgeGroup, r.MRN}
	},
	func(r *dimension.PatientRow) []any {
		return []any{&r.PatientID, &r.FirstName, &r.LastName, &r.FullName, &r.DateOfBirth, &r.Gender, &r.GenderDescription, &r.Age, &r.AgeGroup, &r.MRN}
	},
)

var providerTable = newDimTable("dim_provider", "provider_key", "provider_id", true,
	[]string{"first_name", "last_name", "full_name", "credential", "specialty_id", "specialty_name", "specialty_code", "department_id", "department_name"},
	func(r dimension.ProviderRow) []any {
		return []any{r.ProviderID, r.FirstName, r.LastName, r.FullName, r.Credential, r.SpecialtyID, r.SpecialtyName, r.SpecialtyCode, r.DepartmentID, r.DepartmentName}
	},
	func(r *dimension.ProviderRow) []any {
		return []any{&r.ProviderID, &r.FirstName, &r.LastName, &r.FullName, &r.Credential, &r.SpecialtyID, &r.SpecialtyName, &r.SpecialtyCode, &r.DepartmentID, &r.DepartmentName}
	},
)

var departmentTable = newDimTable("dim_department", "department_key", "department_id", false,
	[]string{"department_name", "floor", "capacity"},
	func(r dimension.DepartmentRow) []any {
		return []any{r.DepartmentID, r.DepartmentName, r.Floor, r.Capacity}
	},
	func(r *dimension.DepartmentRow) []any {
		return []any{&r.DepartmentID, &r.DepartmentName, &r.Floor, &r.Capacity}
	},
)

var diagnosisTable = newDimTable("dim_diagnosis", "diagnosis_key", "diagnosis_id", false,
	[]string{"icd10_code", "icd10_description", "diagnosis_category"},
	func(r dimension.DiagnosisRow) []any {
		return []any{r.DiagnosisID, r.ICD10Code, r.ICD10Description, r.DiagnosisCategory}
	},
	func(r *dimension.DiagnosisRow) []any {
		return []any{&r.DiagnosisID, &r.ICD10Code, &r.ICD10Description, &r.DiagnosisCategory}
	},
)

var procedureTable = newDimTable("dim_procedure", "procedure_key", "procedure_id", false,
	[]string{"cpt_code", "cpt_description", "procedure_category"},
	func(r dimension.ProcedureRow) []any {
		return []any{r.ProcedureID, r.CPTCode, r.CPTDescription, r.ProcedureCategory}
	},
	func(r *dimension.ProcedureRow) []any {
		return []any{&r.ProcedureID, &r.CPTCode, &r.CPTDescription, &r.ProcedureCategory}
	},
)
