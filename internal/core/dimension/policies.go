package dimension

import "time"

// PatientPolicy versions patients on demographic changes.
// Derived attributes follow the tracked ones and are not compared.
var PatientPolicy = Policy[PatientRow]{
	Table:    "dim_patient",
	Entity:   "patient",
	Strategy: SCD2,
	Changed: func(current, incoming PatientRow) bool {
		return current.FirstName != incoming.FirstName ||
			current.LastName != incoming.LastName ||
			!sameDate(current.DateOfBirth.Time, current.DateOfBirth.Valid, incoming.DateOfBirth.Time, incoming.DateOfBirth.Valid) ||
			current.Gender != incoming.Gender ||
			current.MRN != incoming.MRN
	},
}

// ProviderPolicy versions providers on specialty or department changes only.
// Name and credential changes alone are ignored.
var ProviderPolicy = Policy[ProviderRow]{
	Table:    "dim_provider",
	Entity:   "provider",
	Strategy: SCD2,
	Changed: func(current, incoming ProviderRow) bool {
		return current.SpecialtyID != incoming.SpecialtyID ||
			current.SpecialtyName != incoming.SpecialtyName ||
			current.SpecialtyCode != incoming.SpecialtyCode ||
			current.DepartmentID != incoming.DepartmentID ||
			current.DepartmentName != incoming.DepartmentName
	},
}

var DepartmentPolicy = Policy[DepartmentRow]{
	Table:    "dim_department",
	Entity:   "department",
	Strategy: SCD1,
}

var DiagnosisPolicy = Policy[DiagnosisRow]{
	Table:    "dim_diagnosis",
	Entity:   "diagnosis",
	Strategy: SCD1,
}

var ProcedurePolicy = Policy[ProcedureRow]{
	Table:    "dim_procedure",
	Entity:   "procedure",
	Strategy: SCD1,
}

func sameDate(a time.Time, aValid bool, b time.Time, bValid bool) bool {
	if aValid != bValid {
		return false
	}
	if !aValid {
		return true
	}
	return RunDate(a).Equal(RunDate(b))
}
