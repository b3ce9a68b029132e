// Package source holds the operational records read by the change selectors.
package source

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Change carries the audit timestamps every operational table exposes.
type Change struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangedAt is the newer of the two audit timestamps.
func (c Change) ChangedAt() time.Time {
	if c.UpdatedAt.After(c.CreatedAt) {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

// ChangedSince is the change selector predicate.
func (c Change) ChangedSince(watermark time.Time) bool {
	return !c.UpdatedAt.Before(watermark) || !c.CreatedAt.Before(watermark)
}

type Patient struct {
	PatientID   int64
	FirstName   string
	LastName    string
	DateOfBirth sql.NullTime
	Gender      string
	MRN         string
	Change
}

// Provider is a provider joined with its specialty and department.
// Change reflects the newest of the three rows.
type Provider struct {
	ProviderID     int64
	FirstName      string
	LastName       string
	Credential     string
	SpecialtyID    int64
	SpecialtyName  string
	SpecialtyCode  string
	DepartmentID   int64
	DepartmentName string
	Change
}

type Department struct {
	DepartmentID   int64
	DepartmentName string
	Floor          sql.NullInt64
	Capacity       sql.NullInt64
	Change
}

type Diagnosis struct {
	DiagnosisID      int64
	ICD10Code        string
	ICD10Description string
	Change
}

type Procedure struct {
	ProcedureID    int64
	CPTCode        string
	CPTDescription string
	Change
}

// Encounter is an encounter with its one-to-many child counts and its
// optional billing row, as fetched by the encounter selector.
type Encounter struct {
	EncounterID    int64
	PatientID      int64
	ProviderID     int64
	DepartmentID   int64
	EncounterType  string
	EncounterDate  time.Time
	DischargeDate  sql.NullTime
	DiagnosisCount int64
	ProcedureCount int64
	Billing        *Billing
	Change
}

type Billing struct {
	BillingID     int64
	EncounterID   int64
	ClaimAmount   decimal.Decimal
	AllowedAmount decimal.Decimal
	ClaimDate     sql.NullTime
	ClaimStatus   sql.NullString
	Change
}

type EncounterDiagnosis struct {
	EncounterDiagnosisID int64
	EncounterID          int64
	DiagnosisID          int64
	Sequence             sql.NullInt64
	Change
}

type EncounterProcedure struct {
	EncounterProcedureID int64
	EncounterID          int64
	ProcedureID          int64
	ProcedureDate        sql.NullTime
	Change
}
