package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellKind is the discriminant of a raw cell. It is decided once, at ingestion.
type CellKind uint8

const (
	CellAbsent CellKind = iota // row was shorter than the header
	CellNull                   // present but empty / null token
	CellNumber                 // parsed as a float64 (may be non-finite)
	CellText                   // anything else
)

// String returns the kind name
func (k CellKind) String() string {
	switch k {
	case CellAbsent:
		return "absent"
	case CellNull:
		return "null"
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	}
	return "invalid"
}

// Cell is the tagged raw value every downstream algorithm dispatches on.
// Raw keeps the original lexeme so the type classifier can still see
// formatting such as "20240101" or "1,200".
type Cell struct {
	Kind CellKind
	Num  float64
	Raw  string
}

// Row is an ordered sequence of cells, one per column.
type Row []Cell

// Absent returns the cell used for missing trailing columns
func Absent() Cell {
	return Cell{Kind: CellAbsent}
}

// Null returns a null cell
func Null() Cell {
	return Cell{Kind: CellNull}
}

// Number creates a numeric cell whose raw lexeme is the shortest float formatting
func Number(v float64) Cell {
	return Cell{Kind: CellNumber, Num: v, Raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

// NumberWithRaw creates a numeric cell preserving the source lexeme
func NumberWithRaw(v float64, raw string) Cell {
	return Cell{Kind: CellNumber, Num: v, Raw: raw}
}

// Text creates a text cell. Whitespace-only text is still text; callers
// that want null semantics should go through the coercer.
func Text(s string) Cell {
	return Cell{Kind: CellText, Raw: s}
}

// IsMissing reports whether the cell carries no value at all
func (c Cell) IsMissing() bool {
	return c.Kind == CellAbsent || c.Kind == CellNull
}

// IsFiniteNumber reports whether the cell is a usable number
func (c Cell) IsFiniteNumber() bool {
	return c.Kind == CellNumber && !math.IsNaN(c.Num) && !math.IsInf(c.Num, 0)
}

// IsBlank reports whether the cell is missing or only whitespace
func (c Cell) IsBlank() bool {
	if c.IsMissing() {
		return true
	}
	return strings.TrimSpace(c.Raw) == ""
}

// String returns the raw lexeme of the cell
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		if c.Raw != "" {
			return c.Raw
		}
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellText:
		return c.Raw
	}
	return ""
}

// At returns the i-th cell of the row, treating short rows as absent cells
func (r Row) At(i int) Cell {
	if i < 0 || i >= len(r) {
		return Absent()
	}
	return r[i]
}

type cellJSON struct {
	Kind string   `json:"kind"`
	Num  *float64 `json:"num,omitempty"`
	Raw  string   `json:"raw,omitempty"`
}

// MarshalJSON writes the kind by name. Non-finite numbers keep only their raw
// lexeme since JSON has no NaN or Inf.
func (c Cell) MarshalJSON() ([]byte, error) {
	out := cellJSON{Kind: c.Kind.String(), Raw: c.Raw}
	if c.IsFiniteNumber() {
		num := c.Num
		out.Num = &num
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON. A number without "num" is re-parsed
// from its raw lexeme.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var in cellJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "absent":
		*c = Absent()
	case "null":
		*c = Null()
	case "text":
		*c = Text(in.Raw)
	case "number":
		if in.Num != nil {
			*c = NumberWithRaw(*in.Num, in.Raw)
			return nil
		}
		v, err := strconv.ParseFloat(in.Raw, 64)
		if err != nil && !math.IsInf(v, 0) {
			return fmt.Errorf("cell: number without a parseable value: %q", in.Raw)
		}
		*c = NumberWithRaw(v, in.Raw)
	default:
		return fmt.Errorf("cell: unknown kind %q", in.Kind)
	}
	return nil
}
