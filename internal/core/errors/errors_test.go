package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("fact_encounters: %w", Dependency("encounter", 42, "patient 7 has no current version"))

	require.True(t, errors.Is(err, ErrDependency))
	assert.False(t, errors.Is(err, ErrConnection))
	assert.Equal(t, KindDependency, KindOf(err))
}

func TestError_MessageNamesNaturalKey(t *testing.T) {
	err := Dependency("encounter", 42, "patient 7 has no current version")
	assert.Equal(t, "DependencyViolation [encounter=42]: patient 7 has no current version", err.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Connection("warehouse", cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "ConnectionError [warehouse]: dial tcp: refused", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindSchemaDrift, KindOf(SchemaDrift("source", []string{"patients.mrn"})))
	assert.Equal(t, KindMalformedRow, KindOf(Malformed("diagnosis", 3, "icd10_code is empty")))
}
