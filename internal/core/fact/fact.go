// Package fact defines the encounter fact and its bridge rows.
package fact

import (
	"database/sql"
	"time"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/shopspring/decimal"
)

// Billing holds the late-arriving measures of an encounter.
// The zero value is the unseen sentinel.
type Billing struct {
	TotalClaimAmount   decimal.Decimal
	TotalAllowedAmount decimal.Decimal
	ClaimStatus        sql.NullString
}

// IsSentinel reports whether no billing has been applied yet.
func (b Billing) IsSentinel() bool {
	return b.TotalClaimAmount.IsZero() && !b.ClaimStatus.Valid
}

// BillingFrom returns the measures of src, or the sentinel when src is nil.
func BillingFrom(src *source.Billing) Billing {
	if src == nil {
		return Billing{}
	}
	return Billing{
		TotalClaimAmount:   src.ClaimAmount,
		TotalAllowedAmount: src.AllowedAmount,
		ClaimStatus:        src.ClaimStatus,
	}
}

// Encounter is a fact_encounters row. Key is assigned by the warehouse.
type Encounter struct {
	Key              int64
	EncounterID      int64
	DateKey          int
	DischargeDateKey sql.NullInt64
	PatientKey       int64
	ProviderKey      int64
	DepartmentKey    int64
	EncounterTypeKey int64
	EncounterDate    time.Time
	DischargeDate    sql.NullTime
	DiagnosisCount   int64
	ProcedureCount   int64
	LengthOfStayDays sql.NullInt64
	Billing
}

// Keys are the resolved surrogate keys of one encounter.
type Keys struct {
	Patient       int64
	Provider      int64
	Department    int64
	EncounterType int64
}

// NewEncounter builds the fact row for e with resolved keys.
func NewEncounter(e source.Encounter, keys Keys) Encounter {
	f := Encounter{
		EncounterID:      e.EncounterID,
		DateKey:          dimension.DateKey(e.EncounterDate),
		PatientKey:       keys.Patient,
		ProviderKey:      keys.Provider,
		DepartmentKey:    keys.Department,
		EncounterTypeKey: keys.EncounterType,
		EncounterDate:    e.EncounterDate,
		DischargeDate:    e.DischargeDate,
		DiagnosisCount:   e.DiagnosisCount,
		ProcedureCount:   e.ProcedureCount,
		LengthOfStayDays: LengthOfStay(sql.NullTime{Time: e.EncounterDate, Valid: !e.EncounterDate.IsZero()}, e.DischargeDate),
		Billing:          BillingFrom(e.Billing),
	}
	if e.DischargeDate.Valid {
		f.DischargeDateKey = sql.NullInt64{Int64: int64(dimension.DateKey(e.DischargeDate.Time)), Valid: true}
	}
	return f
}

// LengthOfStay is the number of calendar days from start to end.
// It is NULL when either bound is unknown.
func LengthOfStay(start, end sql.NullTime) sql.NullInt64 {
	if !start.Valid || !end.Valid {
		return sql.NullInt64{}
	}
	days := dimension.RunDate(end.Time).Sub(dimension.RunDate(start.Time)) / (24 * time.Hour)
	return sql.NullInt64{Int64: int64(days), Valid: true}
}

// DiagnosisBridge links a fact to a diagnosis version.
type DiagnosisBridge struct {
	EncounterKey int64
	DiagnosisKey int64
	Sequence     sql.NullInt64
}

// ProcedureBridge links a fact to a procedure version.
type ProcedureBridge struct {
	EncounterKey  int64
	ProcedureKey  int64
	ProcedureDate sql.NullTime
}
