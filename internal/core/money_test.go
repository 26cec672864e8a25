package core

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true},
		{" 2.50 ", "2.5", true},
		{".5", "0.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.004", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1 000", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if assert.NoError(t, err, tc.in) {
				assert.True(t, got.Equal(decimal.RequireFromString(tc.out)), "%q: got %s", tc.in, got)
			}
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, tc.in)
		}
	}
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, finite(math.NaN()))
	assert.Equal(t, 0.0, finite(math.Inf(1)))
	assert.Equal(t, 0.0, finite(math.Inf(-1)))
	assert.Equal(t, 2.5, finite(2.5))
}
