package coercer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"goprofile/domain/table"
)

// CellCoercer decides the tagged kind of a raw cell at ingestion time
type CellCoercer struct {
	config CoercionConfig
}

// CoercionConfig defines the tokens and rules used during ingestion
type CoercionConfig struct {
	NullTokens []string `json:"null_tokens"` // case-insensitive, compared after trimming
	TrimSpace  bool     `json:"trim_space"`  // trim text cells before storing them
}

// DefaultCoercionConfig returns sensible defaults
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		NullTokens: []string{"na", "n/a", "null", "none", "nil", "-", "--", "#n/a"},
		TrimSpace:  true,
	}
}

var defaultCoercer = NewCellCoercer(DefaultCoercionConfig())

// NewCellCoercer creates a coercer with the given config
func NewCellCoercer(config CoercionConfig) *CellCoercer {
	tokens := make([]string, len(config.NullTokens))
	for i, t := range config.NullTokens {
		tokens[i] = strings.ToLower(strings.TrimSpace(t))
	}
	config.NullTokens = tokens
	return &CellCoercer{config: config}
}

// ParseCell coerces with the default configuration
func ParseCell(raw string) table.Cell {
	return defaultCoercer.ParseCell(raw)
}

// ParseCell deterministically converts a raw field into a tagged cell.
// Empty strings and null tokens become null. Plain numeric lexemes become
// numbers, as do amounts carrying a currency marker or a percent suffix
// ("$12.50", "12%"). Non-finite values come only from the tokens NaN, Inf,
// +Inf and -Inf or from overflow, and stay non-finite. The rest is text. The
// raw lexeme is kept on numbers and text.
func (c *CellCoercer) ParseCell(raw string) table.Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || c.IsNullToken(trimmed) {
		return table.Null()
	}

	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if !math.IsNaN(v) && !math.IsInf(v, 0) || nonFiniteTokens[trimmed] {
			return table.NumberWithRaw(v, trimmed)
		}
	} else if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		// overflow: ParseFloat already returned ±Inf, which moments will skip
		return table.NumberWithRaw(v, trimmed)
	} else if v, ok := decoratedAmount(trimmed); ok {
		return table.NumberWithRaw(v, trimmed)
	}

	if c.config.TrimSpace {
		return table.Text(trimmed)
	}
	return table.Text(raw)
}

var nonFiniteTokens = map[string]bool{"NaN": true, "Inf": true, "+Inf": true, "-Inf": true}

// decoratedAmount parses a currency amount or a percentage. The value is the
// number as written, so "12%" is 12.
func decoratedAmount(s string) (float64, bool) {
	marked := strings.HasSuffix(s, "%")
	for _, symbol := range currencySymbols {
		if strings.Contains(s, symbol) {
			marked = true
			break
		}
	}
	if !marked {
		return 0, false
	}
	v, _, ok := ParseLenientNumber(s)
	return v, ok
}

// IsNullToken reports whether s spells a missing value
func (c *CellCoercer) IsNullToken(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, t := range c.config.NullTokens {
		if lower == t {
			return true
		}
	}
	return false
}

// FromValue converts a typed value produced by a structured reader (XLSX, JSON)
// into a cell.
func FromValue(val interface{}) table.Cell {
	switch v := val.(type) {
	case nil:
		return table.Null()
	case string:
		return ParseCell(v)
	case float64:
		return table.Number(v)
	case float32:
		return table.Number(float64(v))
	case int:
		return table.Number(float64(v))
	case int64:
		return table.Number(float64(v))
	case bool:
		return table.Text(strconv.FormatBool(v))
	default:
		return ParseCell(fmt.Sprintf("%v", v))
	}
}

// ParseLenientNumber parses formatted numeric text: currency symbols and codes,
// trailing percent, parentheses for negatives and thousands/decimal separators
// in both US and European styles. It reports whether anything was stripped.
func ParseLenientNumber(strVal string) (value float64, decorated bool, ok bool) {
	cleanVal := strings.TrimSpace(strVal)
	if cleanVal == "" {
		return 0, false, false
	}

	// Handle parentheses for negative numbers: (123) -> -123
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
		decorated = true
	}

	for _, symbol := range currencySymbols {
		if strings.Contains(cleanVal, symbol) {
			cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
			decorated = true
		}
	}
	cleanVal = strings.TrimSpace(cleanVal)

	if strings.HasSuffix(cleanVal, "%") {
		cleanVal = strings.TrimSpace(strings.TrimSuffix(cleanVal, "%"))
		decorated = true
	}

	hasComma := strings.Contains(cleanVal, ",")
	hasPeriod := strings.Contains(cleanVal, ".")
	hasSpace := strings.Contains(cleanVal, " ")

	switch {
	case hasComma && (hasPeriod || hasSpace):
		commaIdx := strings.LastIndex(cleanVal, ",")
		periodIdx := strings.LastIndex(cleanVal, ".")
		if commaIdx > periodIdx {
			// 1.234,56 or 1 234,56
			cleanVal = strings.ReplaceAll(cleanVal, ".", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		} else {
			// 1,234.56
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
		}
		decorated = true
	case hasComma:
		// 1,200 is a thousands group; 3,5 is a European decimal
		afterComma := cleanVal[strings.LastIndex(cleanVal, ",")+1:]
		if len(afterComma) == 3 {
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
		} else {
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		}
		decorated = true
	case hasSpace:
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
		decorated = true
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}

	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false, false
	}
	return val, decorated, true
}

var currencySymbols = []string{"$", "€", "£", "¥", "USD", "EUR", "GBP", "JPY"}

// ParseBoolean recognises the boolean spellings used in exported datasets
func ParseBoolean(strVal string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(strVal)) {
	case "true", "1", "yes", "y", "t", "active":
		return true, true
	case "false", "0", "no", "n", "f", "inactive":
		return false, true
	}
	return false, false
}

// NormalizeString applies deterministic normalization used for distinct counting
func NormalizeString(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
