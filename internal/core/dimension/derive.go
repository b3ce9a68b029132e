package dimension

import (
	"strings"
	"time"
)

// GenderDescription expands the source gender code.
func GenderDescription(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "M":
		return "Male"
	case "F":
		return "Female"
	default:
		return "Unknown"
	}
}

// AgeAt returns the whole years between dob and asOf.
func AgeAt(dob, asOf time.Time) int {
	dob, asOf = dob.UTC(), asOf.UTC()
	age := asOf.Year() - dob.Year()
	if asOf.Month() < dob.Month() || (asOf.Month() == dob.Month() && asOf.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func AgeGroup(age int) string {
	switch {
	case age < 18:
		return "0-17"
	case age < 35:
		return "18-34"
	case age < 55:
		return "35-54"
	case age < 75:
		return "55-74"
	default:
		return "75+"
	}
}

var icd10Chapters = map[byte]string{
	'I': "Circulatory System",
	'E': "Endocrine/Metabolic",
	'J': "Respiratory System",
	'M': "Musculoskeletal",
	'K': "Digestive System",
	'N': "Genitourinary",
	'F': "Mental/Behavioral",
	'G': "Nervous System",
	'C': "Neoplasms",
	'R': "Symptoms/Signs",
	'S': "Injury/Trauma",
	'A': "Infectious Disease",
	'B': "Infectious Disease",
	'D': "Blood/Immune",
	'L': "Skin",
}

// DiagnosisCategory maps an ICD-10 code to its chapter by leading letter.
func DiagnosisCategory(icd10 string) string {
	if icd10 == "" {
		return "Other"
	}
	if c, ok := icd10Chapters[icd10[0]]; ok {
		return c
	}
	return "Other"
}

type cptRange struct {
	lo, hi   string
	category string
}

// Evaluated in order; E&M overlaps the Medicine range.
var cptRanges = []cptRange{
	{"99201", "99499", "E&M Services"},
	{"70000", "79999", "Radiology"},
	{"80000", "89999", "Pathology/Lab"},
	{"90000", "99199", "Medicine"},
	{"10000", "69999", "Surgery"},
}

// ProcedureCategory maps a CPT code to its section. Codes compare as text.
func ProcedureCategory(cpt string) string {
	for _, r := range cptRanges {
		if cpt >= r.lo && cpt <= r.hi {
			return r.category
		}
	}
	return "Other"
}
