//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EndToEnd(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	report := h.triggerRun(t)
	require.Equal(t, orchestrator.StateDone, report.State)
	require.Equal(t, 9, report.CommittedStages)

	counts := h.tableCounts(t)
	assert.Equal(t, int64(1), counts["fact_encounters"])
	assert.Equal(t, int64(1), counts["dim_patient"])
	assert.Equal(t, int64(2), counts["bridge_encounter_diagnosis"])
	assert.Equal(t, int64(1), counts["bridge_encounter_procedure"])
	assert.Equal(t, int64(2), h.queryInt(t, `SELECT diagnosis_count FROM fact_encounters WHERE encounter_id = 1`))

	t.Run("rerun leaves the warehouse unchanged", func(t *testing.T) {
		report := h.triggerRun(t)
		require.Equal(t, orchestrator.StateDone, report.State)
		after := h.tableCounts(t)
		delete(after, "etl_metadata")
		delete(counts, "etl_metadata")
		assert.Equal(t, counts, after)
	})

	t.Run("patient name change adds a version", func(t *testing.T) {
		h.execSource(t, `UPDATE patients SET last_name = 'Smith', updated_at = NOW() + INTERVAL 1 SECOND WHERE patient_id = 1`)

		report := h.triggerRun(t)
		require.Equal(t, orchestrator.StateDone, report.State)

		assert.Equal(t, int64(2), h.queryInt(t, `SELECT COUNT(*) FROM dim_patient WHERE patient_id = 1`))
		assert.Equal(t, int64(1), h.queryInt(t, `SELECT COUNT(*) FROM dim_patient WHERE patient_id = 1 AND is_current`))
		assert.Equal(t, int64(1), h.queryInt(t,
			`SELECT COUNT(*) FROM dim_patient WHERE patient_id = 1 AND is_current AND last_name = 'Smith'`))
	})

	t.Run("late billing patches the fact once", func(t *testing.T) {
		require.Equal(t, int64(0), h.queryInt(t, `SELECT COUNT(*) FROM fact_encounters WHERE claim_status IS NOT NULL`))

		h.execSource(t, `
			INSERT INTO billing (billing_id, encounter_id, claim_amount, allowed_amount, claim_date, claim_status)
			VALUES (1, 1, 150.00, 120.00, '2024-02-03', 'PAID')
		`)

		report := h.triggerRun(t)
		require.Equal(t, orchestrator.StateDone, report.State)
		assert.Equal(t, int64(1), h.queryInt(t,
			`SELECT COUNT(*) FROM fact_encounters WHERE encounter_id = 1 AND claim_status = 'PAID' AND total_claim_amount = 150.00`))

		h.execSource(t, `UPDATE billing SET claim_status = 'DENIED', updated_at = NOW() + INTERVAL 1 SECOND WHERE billing_id = 1`)
		report = h.triggerRun(t)
		require.Equal(t, orchestrator.StateDone, report.State)
		assert.Equal(t, int64(1), h.queryInt(t,
			`SELECT COUNT(*) FROM fact_encounters WHERE encounter_id = 1 AND claim_status = 'PAID'`))
	})
}

func TestLoad_VerificationEndpoint(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	resp, err := h.client.Get(h.baseURL + "/v1/runs/last")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.triggerRun(t)

	resp, err = h.client.Get(h.baseURL + "/v1/verification")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "fact_encounters")

	last := h.queryInt(t, `SELECT COUNT(*) FROM etl_metadata WHERE last_load_timestamp <= $1`, time.Now().UTC().Add(time.Hour))
	assert.Equal(t, int64(9), last)
}
