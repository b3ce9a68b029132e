package fact

import (
	"database/sql"
	"testing"
	"time"

	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLengthOfStay(t *testing.T) {
	admit := sql.NullTime{Time: time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC), Valid: true}
	discharge := sql.NullTime{Time: time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC), Valid: true}

	require.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, LengthOfStay(admit, discharge))
	require.Equal(t, sql.NullInt64{Int64: 0, Valid: true}, LengthOfStay(admit, admit))
	require.False(t, LengthOfStay(admit, sql.NullTime{}).Valid)
	require.False(t, LengthOfStay(sql.NullTime{}, discharge).Valid)
}

func TestBillingFrom_NilIsSentinel(t *testing.T) {
	b := BillingFrom(nil)
	require.True(t, b.IsSentinel())

	paid := BillingFrom(&source.Billing{
		ClaimAmount:   decimal.RequireFromString("125.50"),
		AllowedAmount: decimal.RequireFromString("100.00"),
		ClaimStatus:   sql.NullString{String: "PAID", Valid: true},
	})
	require.False(t, paid.IsSentinel())
	require.Equal(t, "125.5", paid.TotalClaimAmount.String())
}

func TestBilling_ZeroClaimWithStatusIsFinal(t *testing.T) {
	denied := Billing{ClaimStatus: sql.NullString{String: "DENIED", Valid: true}}
	require.False(t, denied.IsSentinel())
}

func TestNewEncounter(t *testing.T) {
	e := source.Encounter{
		EncounterID:    1,
		EncounterType:  "Inpatient",
		EncounterDate:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		DischargeDate:  sql.NullTime{Time: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), Valid: true},
		DiagnosisCount: 2,
	}

	f := NewEncounter(e, Keys{Patient: 11, Provider: 12, Department: 13, EncounterType: 2})

	require.Equal(t, 20240301, f.DateKey)
	require.Equal(t, sql.NullInt64{Int64: 20240305, Valid: true}, f.DischargeDateKey)
	require.Equal(t, int64(11), f.PatientKey)
	require.Equal(t, int64(2), f.EncounterTypeKey)
	require.Equal(t, int64(2), f.DiagnosisCount)
	require.Equal(t, int64(0), f.ProcedureCount)
	require.Equal(t, sql.NullInt64{Int64: 4, Valid: true}, f.LengthOfStayDays)
	require.True(t, f.IsSentinel())
}

func TestNewEncounter_Outpatient(t *testing.T) {
	e := source.Encounter{
		EncounterID:   2,
		EncounterDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	f := NewEncounter(e, Keys{})
	require.False(t, f.DischargeDateKey.Valid)
	require.False(t, f.LengthOfStayDays.Valid)
}
