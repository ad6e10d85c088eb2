package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"250", "250"},
		{"1500.00", "1500"},
		{"1.234,56", "1234.56"},
		{"R$ 1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"99,9", "99.9"},
		{"1.000.000", "1000000"},
		{"1.234", "1234"},
		{"12.5", "12.5"},
		{"999999999999999,99", "999999999999999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{
		"", "abc", "1,2,3", "R$",
		"1e50000000", "1E3", "2,5e10",
		"0,005", "12.3456",
		"1000000000000000",
	} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrInvalidAmount), "input %q: %v", in, err)
	}

	_, err := Parse("-10")
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "R$ 1.500,00", Format(decimal.NewFromInt(1500)))
	assert.Equal(t, "R$ 0,50", Format(decimal.RequireFromString("0.5")))
	assert.Equal(t, "R$ 1.234.567,89", Format(decimal.RequireFromString("1234567.89")))
	assert.Equal(t, "-R$ 12,00", Format(decimal.NewFromInt(-12)))
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(123457), Cents(decimal.RequireFromString("1234.565")))
	assert.True(t, FromCents(2500).Equal(decimal.NewFromInt(25)))
}
