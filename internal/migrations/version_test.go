package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{"plain number", "7", 7, false},
		{"v prefix", "v3", 3, false},
		{"zero", "0", 0, false},
		{"surrounding spaces", " v9 ", 9, false},
		{"empty", "", 0, true},
		{"only prefix", "v", 0, true},
		{"not a number", "vseven", 0, true},
		{"decimal", "3.0", 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v0", FormatVersion(0))
	assert.Equal(t, "v9", FormatVersion(9))

	version, err := ParseVersion(FormatVersion(4))
	require.NoError(t, err)
	assert.Equal(t, 4, version)
}
