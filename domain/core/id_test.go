package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsUniqueUUIDv7(t *testing.T) {
	seen := make(map[RunID]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewRunID()
		parsed, err := uuid.Parse(id.String())
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestParseRunID(t *testing.T) {
	valid := NewRunID()
	tests := []struct {
		name    string
		input   string
		want    RunID
		wantErr bool
	}{
		{"canonical", valid.String(), valid, false},
		{"padded", "  " + valid.String() + " ", valid, false},
		{"not a uuid", "run-123", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFingerprintIgnoresMapOrder(t *testing.T) {
	a, err := Fingerprint(map[string]float64{"k1": 1, "k2": 2})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]float64{"k2": 2, "k1": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
	assert.Equal(t, a.String()[:12], a.Short())

	c, err := Fingerprint(map[string]float64{"k1": 1, "k2": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
