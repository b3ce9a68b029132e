package mysql

// Every selector takes (since, since, after, limit): the change predicate
// is inclusive and pages are keyed on the natural key.
const (
	queryPatients = `
		SELECT patient_id, first_name, last_name, date_of_birth, gender, mrn, created_at, updated_at
		FROM patients
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND patient_id > ?
		ORDER BY patient_id
		LIMIT ?
	`

	// A provider counts as changed when its specialty or department row
	// changed, since both are denormalized into dim_provider.
	queryProviders = `
		SELECT provider_id, first_name, last_name, credential,
		       specialty_id, specialty_name, specialty_code,
		       department_id, department_name, created_at, updated_at
		FROM (
			SELECT p.provider_id, p.first_name, p.last_name, p.credential,
			       s.specialty_id, s.specialty_name, s.specialty_code,
			       d.department_id, d.department_name,
			       p.created_at,
			       GREATEST(p.updated_at, s.updated_at, d.updated_at, s.created_at, d.created_at) AS updated_at
			FROM providers p
			JOIN specialties s ON p.specialty_id = s.specialty_id
			JOIN departments d ON p.department_id = d.department_id
		) c
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND provider_id > ?
		ORDER BY provider_id
		LIMIT ?
	`

	queryDepartments = `
		SELECT department_id, department_name, floor, capacity, created_at, updated_at
		FROM departments
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND department_id > ?
		ORDER BY department_id
		LIMIT ?
	`

	queryDiagnoses = `
		SELECT diagnosis_id, icd10_code, icd10_description, created_at, updated_at
		FROM diagnoses
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND diagnosis_id > ?
		ORDER BY diagnosis_id
		LIMIT ?
	`

	queryProcedures = `
		SELECT procedure_id, cpt_code, cpt_description, created_at, updated_at
		FROM procedures
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND procedure_id > ?
		ORDER BY procedure_id
		LIMIT ?
	`

	queryEncounters = `
		SELECT encounter_id, patient_id, provider_id, department_id, encounter_type,
		       encounter_date, discharge_date, created_at, updated_at
		FROM encounters
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND encounter_id > ?
		ORDER BY encounter_id
		LIMIT ?
	`

	queryBilling = `
		SELECT billing_id, encounter_id, claim_amount, allowed_amount, claim_date, claim_status, created_at, updated_at
		FROM billing
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND billing_id > ?
		ORDER BY billing_id
		LIMIT ?
	`

	queryEncounterDiagnoses = `
		SELECT encounter_diagnosis_id, encounter_id, diagnosis_id, diagnosis_sequence, created_at, updated_at
		FROM encounter_diagnoses
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND encounter_diagnosis_id > ?
		ORDER BY encounter_diagnosis_id
		LIMIT ?
	`

	queryEncounterProcedures = `
		SELECT encounter_procedure_id, encounter_id, procedure_id, procedure_date, created_at, updated_at
		FROM encounter_procedures
		WHERE (updated_at >= ? OR created_at >= ?)
		  AND encounter_procedure_id > ?
		ORDER BY encounter_procedure_id
		LIMIT ?
	`

	// The batch enrichment queries below take an IN list built per page.
	queryDiagnosisCounts = `SELECT encounter_id, COUNT(*) FROM encounter_diagnoses WHERE encounter_id IN (%s) GROUP BY encounter_id`
	queryProcedureCounts = `SELECT encounter_id, COUNT(*) FROM encounter_procedures WHERE encounter_id IN (%s) GROUP BY encounter_id`

	// The lowest billing_id wins when an encounter has several claims.
	queryEncounterBilling = `
		SELECT billing_id, encounter_id, claim_amount, allowed_amount, claim_date, claim_status, created_at, updated_at
		FROM billing
		WHERE encounter_id IN (%s)
		ORDER BY billing_id
	`

	querySchemaColumns = `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
	`
)
