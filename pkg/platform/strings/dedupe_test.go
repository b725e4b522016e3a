package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMulti(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "only blanks",
			input:    []string{"", " , "},
			expected: nil,
		},
		{
			name:     "splits comma separated values",
			input:    []string{"HIV,Malaria"},
			expected: []string{"HIV", "Malaria"},
		},
		{
			name:     "trims and dedupes across repeated params",
			input:    []string{" HIV ", "Malaria, HIV", "Tuberculosis"},
			expected: []string{"HIV", "Malaria", "Tuberculosis"},
		},
		{
			name:     "is case sensitive",
			input:    []string{"hiv", "HIV"},
			expected: []string{"hiv", "HIV"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseMulti(tt.input))
		})
	}
}

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"South Asia", "", "East Asia and Pacific", "South Asia"})
	assert.Equal(t, []string{"East Asia and Pacific", "South Asia"}, got)
	assert.Empty(t, SortedUnique(nil))
}
