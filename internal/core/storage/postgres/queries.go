package postgres

const (
	// FOR UPDATE serializes stages of the same load unit across processes.
	queryGetWatermark = `
		SELECT last_load_timestamp, rows_processed, load_kind
		FROM etl_metadata
		WHERE load_unit_name = $1
		FOR UPDATE
	`

	// The stored timestamp never moves backwards, even if a caller passes an
	// older one.
	querySetWatermark = `
		INSERT INTO etl_metadata (load_unit_name, last_load_timestamp, rows_processed, load_kind, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (load_unit_name) DO UPDATE SET
			last_load_timestamp = GREATEST(etl_metadata.last_load_timestamp, EXCLUDED.last_load_timestamp),
			rows_processed      = EXCLUDED.rows_processed,
			load_kind           = EXCLUDED.load_kind,
			updated_at          = EXCLUDED.updated_at
	`

	queryListWatermarks = `
		SELECT load_unit_name, last_load_timestamp, rows_processed, load_kind
		FROM etl_metadata
		ORDER BY load_unit_name ASC
	`

	queryEncounterTypeKey = `SELECT encounter_type_key FROM dim_encounter_type WHERE encounter_type_name = $1`

	queryEnsureDate = `
		INSERT INTO dim_date (
			date_key, calendar_date, year, quarter, month, month_name, week_of_year,
			day_of_month, day_of_week, day_name, is_weekend, fiscal_year, fiscal_quarter
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (date_key) DO NOTHING
	`

	// Dimension keys and the admit date are written once. A conflicting
	// encounter refreshes discharge, counts and billing. xmax = 0 holds for
	// fresh inserts.
	queryUpsertFact = `
		INSERT INTO fact_encounters (
			encounter_id, date_key, discharge_date_key, patient_key, provider_key,
			department_key, encounter_type_key, encounter_date, discharge_date,
			diagnosis_count, procedure_count, total_claim_amount, total_allowed_amount,
			claim_status, length_of_stay_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (encounter_id) DO UPDATE SET
			discharge_date_key   = EXCLUDED.discharge_date_key,
			discharge_date       = EXCLUDED.discharge_date,
			length_of_stay_days  = EXCLUDED.length_of_stay_days,
			diagnosis_count      = EXCLUDED.diagnosis_count,
			procedure_count      = EXCLUDED.procedure_count,
			total_claim_amount   = EXCLUDED.total_claim_amount,
			total_allowed_amount = EXCLUDED.total_allowed_amount,
			claim_status         = EXCLUDED.claim_status,
			updated_at           = NOW()
		RETURNING encounter_key, (xmax = 0) AS inserted
	`

	queryFactKey = `SELECT encounter_key FROM fact_encounters WHERE encounter_id = $1`

	queryPatchBilling = `
		UPDATE fact_encounters
		SET total_claim_amount = $2, total_allowed_amount = $3, claim_status = $4, updated_at = NOW()
		WHERE encounter_id = $1
		  AND total_claim_amount = 0
		  AND claim_status IS NULL
	`

	queryInsertDiagnosisBridge = `
		INSERT INTO bridge_encounter_diagnosis (encounter_key, diagnosis_key, diagnosis_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (encounter_key, diagnosis_key) DO NOTHING
	`

	queryInsertProcedureBridge = `
		INSERT INTO bridge_encounter_procedure (encounter_key, procedure_key, procedure_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (encounter_key, procedure_key) DO NOTHING
	`

	querySchemaColumns = `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = ANY($1)
	`

	queryTryRunLock = `SELECT pg_try_advisory_lock($1)`
	queryRunUnlock  = `SELECT pg_advisory_unlock($1)`
)
