package fixedpoint

import (
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad literal %s", s)
	return v
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1000000000000000000"},
		{"4.0", "4000000000000000000"},
		{"1.5", "1500000000000000000"},
		{".5", "500000000000000000"},
		{"5.", "5000000000000000000"},
		{"-2.25", "-2250000000000000000"},
		{"0.000000000000000001", "1"},
		{"  3.14  ", "3140000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		in  string
		err error
	}{
		{"", ErrInvalidNumber},
		{".", ErrInvalidNumber},
		{"-", ErrInvalidNumber},
		{"abc", ErrInvalidNumber},
		{"1e18", ErrInvalidNumber},
		{"1.2.3", ErrInvalidNumber},
		{"+1", ErrInvalidNumber},
		{"NaN", ErrNotFinite},
		{"Infinity", ErrNotFinite},
		{"-Infinity", ErrNotFinite},
		{"inf", ErrNotFinite},
		{"0.0000000000000000001", ErrTooPrecise},
		{"1" + strings.Repeat("0", 60), ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			_, err := Parse(tc.in)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseInt256Bounds(t *testing.T) {
	maxStr := Format(MaxInt256)
	v, err := Parse(maxStr)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(MaxInt256))

	over := Format(new(big.Int).Add(MaxInt256, big.NewInt(1)))
	_, err = Parse(over)
	assert.ErrorIs(t, err, ErrOutOfRange)

	minStr := Format(MinInt256)
	v, err = Parse(minStr)
	require.NoError(t, err)
	assert.True(t, IsNegInfinity(v))
}

func TestParseUnsigned(t *testing.T) {
	_, err := ParseUnsigned("-1")
	assert.ErrorIs(t, err, ErrNegative)

	v, err := ParseUnsigned(Format(MaxUint256))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(MaxUint256))

	_, err = ParseUnsigned(Format(new(big.Int).Add(MaxUint256, big.NewInt(1))))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "0.000000000000000001"},
		{"1000000000000000000", "1"},
		{"1500000000000000000", "1.5"},
		{"-2250000000000000000", "-2.25"},
		{"-1", "-0.000000000000000001"},
		{"123456789012345678901234567890", "123456789012.34567890123456789"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(mustBig(t, tc.in)))
		})
	}
	assert.Equal(t, "0", Format(nil))
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"0", "1", "2", "10", "0.1", "0.5", "1.25", "3.141592653589793238",
		"0.000000000000000001", "999999999999999999.999999999999999999",
		"9007199254740991", "42.000000000000000042",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			v, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, Format(v))
		})
	}

	t.Run("trailing zeros are trimmed", func(t *testing.T) {
		v, err := Parse("1.500000")
		require.NoError(t, err)
		assert.Equal(t, "1.5", Format(v))
	})
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "12.5", FormatUnits(big.NewInt(1250), 2))
	assert.Equal(t, "7", FormatUnits(big.NewInt(7), 0))

	v, err := ParseUnits("12.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "12500000", v.String())
}

func TestFormatPrecision(t *testing.T) {
	two, err := Parse("2")
	require.NoError(t, err)
	assert.Equal(t, "2.000000", FormatPrecision(two, 6))

	v, err := Parse("1.4142135623730950")
	require.NoError(t, err)
	assert.Equal(t, "1.414214", FormatPrecision(v, 6))
	assert.Equal(t, "1", FormatPrecision(v, 0))

	neg, err := Parse("-0.0000005")
	require.NoError(t, err)
	assert.Equal(t, "-0.000001", FormatPrecision(neg, 6))

	tiny, err := Parse("-0.0000004")
	require.NoError(t, err)
	assert.Equal(t, "0.000000", FormatPrecision(tiny, 6))
}

func TestDisplaySentinels(t *testing.T) {
	assert.Equal(t, "-Infinity", Display(MinInt256, 6))
	assert.Equal(t, "Infinity", Display(MaxInt256, 6))
	assert.Equal(t, "1.500000", Display(mustBig(t, "1500000000000000000"), 6))
}

func TestFromFloat(t *testing.T) {
	v, err := FromFloat(0.1)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", v.String())

	v, err = FromFloat(-2.5)
	require.NoError(t, err)
	assert.Equal(t, "-2.5", Format(v))

	v, err = FromFloat(MaxSafeInteger)
	require.NoError(t, err)
	assert.Equal(t, "9007199254740991", Format(v))

	_, err = FromFloat(math.NaN())
	assert.ErrorIs(t, err, ErrNotFinite)

	_, err = FromFloat(math.Inf(-1))
	assert.ErrorIs(t, err, ErrNotFinite)

	_, err = FromFloat(MaxSafeInteger * 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestToFloatAndFromInt64(t *testing.T) {
	assert.Equal(t, "7000000000000000000", FromInt64(7).String())
	assert.InDelta(t, 2.5, ToFloat(mustBig(t, "2500000000000000000")), 1e-12)
	assert.Equal(t, 0.0, ToFloat(nil))
}
