package dimension

import (
	"database/sql"
	"testing"
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/stretchr/testify/require"
)

func TestAgeGroup(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{0, "0-17"},
		{17, "0-17"},
		{18, "18-34"},
		{34, "18-34"},
		{35, "35-54"},
		{54, "35-54"},
		{55, "55-74"},
		{74, "55-74"},
		{75, "75+"},
		{101, "75+"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, AgeGroup(tc.age), "age %d", tc.age)
	}
}

func TestAgeAt_BeforeAndAfterBirthday(t *testing.T) {
	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)

	require.Equal(t, 33, AgeAt(dob, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 34, AgeAt(dob, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 0, AgeAt(dob, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDiagnosisCategory(t *testing.T) {
	require.Equal(t, "Circulatory System", DiagnosisCategory("I10"))
	require.Equal(t, "Endocrine/Metabolic", DiagnosisCategory("E11.9"))
	require.Equal(t, "Infectious Disease", DiagnosisCategory("A09"))
	require.Equal(t, "Infectious Disease", DiagnosisCategory("B34.9"))
	require.Equal(t, "Other", DiagnosisCategory("Z00.00"))
	require.Equal(t, "Other", DiagnosisCategory(""))
}

func TestProcedureCategory(t *testing.T) {
	tests := map[string]string{
		"99213": "E&M Services",
		"71046": "Radiology",
		"85025": "Pathology/Lab",
		"93000": "Medicine",
		"27447": "Surgery",
		"00100": "Other",
	}
	for code, want := range tests {
		require.Equal(t, want, ProcedureCategory(code), code)
	}
}

func TestGenderDescription(t *testing.T) {
	require.Equal(t, "Male", GenderDescription("M"))
	require.Equal(t, "Female", GenderDescription("f"))
	require.Equal(t, "Unknown", GenderDescription("X"))
	require.Equal(t, "Unknown", GenderDescription(""))
}

func TestNewDate(t *testing.T) {
	d := NewDate(time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC))

	require.Equal(t, 20240302, d.DateKey)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), d.CalendarDate)
	require.Equal(t, 1, d.Quarter)
	require.Equal(t, "March", d.MonthName)
	require.Equal(t, 6, d.DayOfWeek)
	require.Equal(t, "Saturday", d.DayName)
	require.True(t, d.IsWeekend)
	require.Equal(t, 9, d.WeekOfYear)
	require.Equal(t, 2024, d.FiscalYear)

	monday := NewDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 1, monday.DayOfWeek)
	require.False(t, monday.IsWeekend)
	require.Equal(t, 1, monday.WeekOfYear)
}

func TestNewPatientRow_DerivesAttributes(t *testing.T) {
	p := source.Patient{
		PatientID:   1,
		FirstName:   "A",
		LastName:    "B",
		DateOfBirth: sql.NullTime{Time: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		Gender:      "F",
		MRN:         "MRN0001",
	}

	row, err := NewPatientRow(p, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "A B", row.FullName)
	require.Equal(t, "Female", row.GenderDescription)
	require.Equal(t, sql.NullInt64{Int64: 34, Valid: true}, row.Age)
	require.Equal(t, "18-34", row.AgeGroup)
}

func TestNewPatientRow_UnknownBirthDate(t *testing.T) {
	row, err := NewPatientRow(source.Patient{PatientID: 2, FirstName: "C"}, time.Now())
	require.NoError(t, err)
	require.False(t, row.Age.Valid)
	require.Empty(t, row.AgeGroup)
	require.Equal(t, "C", row.FullName)
}

func TestRowConstructors_RejectMalformed(t *testing.T) {
	_, err := NewPatientRow(source.Patient{}, time.Now())
	require.ErrorIs(t, err, etlerr.ErrMalformedRow)

	_, err = NewProviderRow(source.Provider{})
	require.ErrorIs(t, err, etlerr.ErrMalformedRow)

	_, err = NewDepartmentRow(source.Department{DepartmentID: -1})
	require.ErrorIs(t, err, etlerr.ErrMalformedRow)

	_, err = NewDiagnosisRow(source.Diagnosis{DiagnosisID: 7, ICD10Code: "  "})
	require.ErrorIs(t, err, etlerr.ErrMalformedRow)
	require.Contains(t, err.Error(), "diagnosis=7")

	_, err = NewProcedureRow(source.Procedure{ProcedureID: 3})
	require.ErrorIs(t, err, etlerr.ErrMalformedRow)
}

func TestPatientPolicy_TracksDemographics(t *testing.T) {
	base := PatientRow{
		PatientID:   1,
		FirstName:   "A",
		LastName:    "B",
		DateOfBirth: sql.NullTime{Time: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		Gender:      "F",
		MRN:         "MRN1",
		Age:         sql.NullInt64{Int64: 34, Valid: true},
	}

	same := base
	same.Age = sql.NullInt64{Int64: 35, Valid: true}
	same.AgeGroup = "35-54"
	require.False(t, PatientPolicy.Changed(base, same), "derived attributes do not version")

	renamed := base
	renamed.LastName = "C"
	require.True(t, PatientPolicy.Changed(base, renamed))

	noDOB := base
	noDOB.DateOfBirth = sql.NullTime{}
	require.True(t, PatientPolicy.Changed(base, noDOB))

	sameDay := base
	sameDay.DateOfBirth.Time = base.DateOfBirth.Time.Add(3 * time.Hour)
	require.False(t, PatientPolicy.Changed(base, sameDay))
}

func TestProviderPolicy_IgnoresNameChanges(t *testing.T) {
	base := ProviderRow{
		ProviderID:     10,
		FirstName:      "Jane",
		LastName:       "Doe",
		SpecialtyID:    1,
		SpecialtyName:  "Cardiology",
		SpecialtyCode:  "CARD",
		DepartmentID:   2,
		DepartmentName: "Heart Center",
	}

	renamed := base
	renamed.LastName = "Smith"
	renamed.Credential = "DO"
	require.False(t, ProviderPolicy.Changed(base, renamed))

	moved := base
	moved.DepartmentID = 3
	moved.DepartmentName = "Emergency"
	require.True(t, ProviderPolicy.Changed(base, moved))

	respecialized := base
	respecialized.SpecialtyCode = "IM"
	require.True(t, ProviderPolicy.Changed(base, respecialized))
}

func TestRunDate_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := RunDate(time.Date(2024, 3, 1, 22, 0, 0, 0, loc))
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), got)
}
