package coercer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"goprofile/domain/table"
)

func TestParseCell(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind table.CellKind
		num  float64
		text string
	}{
		{"empty", "", table.CellNull, 0, ""},
		{"whitespace", "   ", table.CellNull, 0, ""},
		{"na token", "N/A", table.CellNull, 0, ""},
		{"null token", " NULL ", table.CellNull, 0, ""},
		{"integer", "42", table.CellNumber, 42, "42"},
		{"float with spaces", " -3.5 ", table.CellNumber, -3.5, "-3.5"},
		{"scientific", "1e3", table.CellNumber, 1000, "1e3"},
		{"compact date stays a number", "20240101", table.CellNumber, 20240101, "20240101"},
		{"thousands separator is text", "1,200", table.CellText, 0, "1,200"},
		{"word", "Electronics", table.CellText, 0, "Electronics"},
		{"boolean word", "true", table.CellText, 0, "true"},
		{"currency amount", "$12.50", table.CellNumber, 12.5, "$12.50"},
		{"currency with thousands", "$1,234.56", table.CellNumber, 1234.56, "$1,234.56"},
		{"negative currency", "(€45,00)", table.CellNumber, -45, "(€45,00)"},
		{"currency code", "120 USD", table.CellNumber, 120, "120 USD"},
		{"percentage", "12%", table.CellNumber, 12, "12%"},
		{"currency word is text", "USD", table.CellText, 0, "USD"},
		{"name spelled nan is text", "Nan", table.CellText, 0, "Nan"},
		{"lowercase inf is text", "inf", table.CellText, 0, "inf"},
		{"infinity is text", "Infinity", table.CellText, 0, "Infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCell(tt.raw)
			assert.Equal(t, tt.kind, c.Kind)
			if tt.kind == table.CellNumber {
				assert.Equal(t, tt.num, c.Num)
			}
			assert.Equal(t, tt.text, c.String())
		})
	}
}

func TestParseCellNonFinite(t *testing.T) {
	c := ParseCell("NaN")
	assert.Equal(t, table.CellNumber, c.Kind)
	assert.True(t, math.IsNaN(c.Num))
	assert.False(t, c.IsFiniteNumber())

	c = ParseCell("1e400")
	assert.Equal(t, table.CellNumber, c.Kind)
	assert.True(t, math.IsInf(c.Num, 1))

	for _, token := range []string{"Inf", "+Inf", "-Inf"} {
		c = ParseCell(token)
		assert.Equal(t, table.CellNumber, c.Kind, token)
		assert.True(t, math.IsInf(c.Num, 0), token)
		assert.Equal(t, token, c.String())
	}
}

func TestFromValue(t *testing.T) {
	assert.Equal(t, table.CellNull, FromValue(nil).Kind)
	assert.Equal(t, 2.5, FromValue(2.5).Num)
	assert.Equal(t, 7.0, FromValue(int64(7)).Num)
	assert.Equal(t, table.CellText, FromValue(true).Kind)
	assert.Equal(t, 9.0, FromValue(uint16(9)).Num)
}

func TestParseLenientNumber(t *testing.T) {
	tests := []struct {
		in        string
		want      float64
		decorated bool
		ok        bool
	}{
		{"12.5", 12.5, false, true},
		{"$1,234.56", 1234.56, true, true},
		{"1.234,56 €", 1234.56, true, true},
		{"(100)", -100, true, true},
		{"45%", 45, true, true},
		{"1,200", 1200, true, true},
		{"3,5", 3.5, true, true},
		{"USD 99", 99, true, true},
		{"abc", 0, false, false},
		{"", 0, false, false},
	}
	for _, tt := range tests {
		v, decorated, ok := ParseLenientNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, v, 1e-9, "input %q", tt.in)
			assert.Equal(t, tt.decorated, decorated, "input %q", tt.in)
		}
	}
}

func TestParseBoolean(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "T", "1", "active"} {
		v, ok := ParseBoolean(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "No", "n", "f", "0", "Inactive"} {
		v, ok := ParseBoolean(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := ParseBoolean("maybe")
	assert.False(t, ok)
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "new york", NormalizeString("  New   York\t"))
}
