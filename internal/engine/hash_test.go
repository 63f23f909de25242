package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAttributes_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"bucket": "datalake", "force_destroy": true, "tags": map[string]any{"env": "dev", "team": "data"}}
	b := map[string]any{"tags": map[string]any{"team": "data", "env": "dev"}, "force_destroy": true, "bucket": "datalake"}

	assert.Equal(t, HashAttributes(a), HashAttributes(b))
}

func TestHashAttributes_SurvivesJSONRoundTrip(t *testing.T) {
	// Numbers parse as int64 but come back from state JSON as float64.
	fresh := map[string]any{"expiration_days": int64(365)}
	roundTripped := map[string]any{"expiration_days": float64(365)}

	assert.Equal(t, HashAttributes(fresh), HashAttributes(roundTripped))
}

func TestHashAttributes_DistinguishesValues(t *testing.T) {
	a := map[string]any{"expiration_days": int64(365)}
	b := map[string]any{"expiration_days": int64(180)}

	assert.NotEqual(t, HashAttributes(a), HashAttributes(b))
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(int64(7), float64(7)))
	assert.True(t, ValuesEqual(nil, nil))
	assert.True(t, ValuesEqual([]any{"a", int64(1)}, []any{"a", float64(1)}))
	assert.True(t, ValuesEqual(
		map[string]any{"x": int64(1), "y": "s"},
		map[string]any{"y": "s", "x": float64(1)},
	))
	assert.False(t, ValuesEqual(int64(7), float64(7.5)))
	assert.False(t, ValuesEqual("7", int64(7)))
	assert.False(t, ValuesEqual([]any{"a", "b"}, []any{"b", "a"}))
}
