package dimension

import (
	"database/sql"
	"strings"
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/source"
)

type PatientRow struct {
	PatientID         int64
	FirstName         string
	LastName          string
	FullName          string
	DateOfBirth       sql.NullTime
	Gender            string
	GenderDescription string
	Age               sql.NullInt64
	AgeGroup          string
	MRN               string
}

func (r PatientRow) NaturalKey() int64 { return r.PatientID }

// NewPatientRow derives the warehouse row for p as of the run date.
func NewPatientRow(p source.Patient, asOf time.Time) (PatientRow, error) {
	if p.PatientID <= 0 {
		return PatientRow{}, etlerr.Malformed("patient", p.PatientID, "patient_id must be positive")
	}
	row := PatientRow{
		PatientID:         p.PatientID,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		FullName:          fullName(p.FirstName, p.LastName),
		DateOfBirth:       p.DateOfBirth,
		Gender:            p.Gender,
		GenderDescription: GenderDescription(p.Gender),
		MRN:               p.MRN,
	}
	if p.DateOfBirth.Valid {
		age := AgeAt(p.DateOfBirth.Time, asOf)
		row.Age = sql.NullInt64{Int64: int64(age), Valid: true}
		row.AgeGroup = AgeGroup(age)
	}
	return row, nil
}

type ProviderRow struct {
	ProviderID     int64
	FirstName      string
	LastName       string
	FullName       string
	Credential     string
	SpecialtyID    int64
	SpecialtyName  string
	SpecialtyCode  string
	DepartmentID   int64
	DepartmentName string
}

func (r ProviderRow) NaturalKey() int64 { return r.ProviderID }

func NewProviderRow(p source.Provider) (ProviderRow, error) {
	if p.ProviderID <= 0 {
		return ProviderRow{}, etlerr.Malformed("provider", p.ProviderID, "provider_id must be positive")
	}
	return ProviderRow{
		ProviderID:     p.ProviderID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		FullName:       fullName(p.FirstName, p.LastName),
		Credential:     p.Credential,
		SpecialtyID:    p.SpecialtyID,
		SpecialtyName:  p.SpecialtyName,
		SpecialtyCode:  p.SpecialtyCode,
		DepartmentID:   p.DepartmentID,
		DepartmentName: p.DepartmentName,
	}, nil
}

type DepartmentRow struct {
	DepartmentID   int64
	DepartmentName string
	Floor          sql.NullInt64
	Capacity       sql.NullInt64
}

func (r DepartmentRow) NaturalKey() int64 { return r.DepartmentID }

func NewDepartmentRow(d source.Department) (DepartmentRow, error) {
	if d.DepartmentID <= 0 {
		return DepartmentRow{}, etlerr.Malformed("department", d.DepartmentID, "department_id must be positive")
	}
	return DepartmentRow{
		DepartmentID:   d.DepartmentID,
		DepartmentName: d.DepartmentName,
		Floor:          d.Floor,
		Capacity:       d.Capacity,
	}, nil
}

type DiagnosisRow struct {
	DiagnosisID       int64
	ICD10Code         string
	ICD10Description  string
	DiagnosisCategory string
}

func (r DiagnosisRow) NaturalKey() int64 { return r.DiagnosisID }

func NewDiagnosisRow(d source.Diagnosis) (DiagnosisRow, error) {
	if d.DiagnosisID <= 0 {
		return DiagnosisRow{}, etlerr.Malformed("diagnosis", d.DiagnosisID, "diagnosis_id must be positive")
	}
	code := strings.TrimSpace(d.ICD10Code)
	if code == "" {
		return DiagnosisRow{}, etlerr.Malformed("diagnosis", d.DiagnosisID, "icd10_code is empty")
	}
	return DiagnosisRow{
		DiagnosisID:       d.DiagnosisID,
		ICD10Code:         code,
		ICD10Description:  d.ICD10Description,
		DiagnosisCategory: DiagnosisCategory(code),
	}, nil
}

type ProcedureRow struct {
	ProcedureID       int64
	CPTCode           string
	CPTDescription    string
	ProcedureCategory string
}

func (r ProcedureRow) NaturalKey() int64 { return r.ProcedureID }

func NewProcedureRow(p source.Procedure) (ProcedureRow, error) {
	if p.ProcedureID <= 0 {
		return ProcedureRow{}, etlerr.Malformed("procedure", p.ProcedureID, "procedure_id must be positive")
	}
	code := strings.TrimSpace(p.CPTCode)
	if code == "" {
		return ProcedureRow{}, etlerr.Malformed("procedure", p.ProcedureID, "cpt_code is empty")
	}
	return ProcedureRow{
		ProcedureID:       p.ProcedureID,
		CPTCode:           code,
		CPTDescription:    p.CPTDescription,
		ProcedureCategory: ProcedureCategory(code),
	}, nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
