package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnitsExact(t *testing.T) {
	cases := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"1500000000000000000", 18, "1.5"},
		{"1000000000000000000", 18, "1"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"123456", 0, "123456"},
		{"10000", 2, "100"},
		{"2500", 2, "25"},
		// Raw value well beyond float64 integer precision stays exact.
		{"123456789123456789123456789", 18, "123456789.123456789123456789"},
	}
	for _, tc := range cases {
		got, err := FormatUnits(tc.raw, tc.decimals)
		require.NoError(t, err, "raw=%s decimals=%d", tc.raw, tc.decimals)
		assert.Equal(t, tc.want, got, "raw=%s decimals=%d", tc.raw, tc.decimals)
	}
}

func TestFormatUnitsRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "1.5", "0x10"} {
		_, err := FormatUnits(raw, 18)
		assert.Error(t, err, "raw=%q", raw)
	}
	_, err := FormatUnits("100", -1)
	assert.Error(t, err)
}

func TestParseRaw(t *testing.T) {
	v, err := ParseRaw("1500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	_, err = ParseRaw("not-a-number")
	assert.Error(t, err)
}
