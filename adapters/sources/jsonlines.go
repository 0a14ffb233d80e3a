package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/core"
	"goprofile/domain/table"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

const (
	// records read ahead to settle the column set of schemaless input
	jsonHeaderSample = 100
	maxJSONLine      = 16 * 1024 * 1024
)

// JSONLinesSource streams one JSON object per line. Columns are the keys of
// the first records in first-seen order; later unknown keys are ignored.
type JSONLinesSource struct {
	name    string
	scanner *bufio.Scanner
	counter *countingReader
	closer  io.Closer
	size    int64
	line    int
	pending []gjson.Result
	columns []string
	coercer *coercer.CellCoercer
	logger  *internal.Logger
}

var (
	_ ports.ClosableRowSource = (*JSONLinesSource)(nil)
	_ ports.ProgressReporter  = (*JSONLinesSource)(nil)
)

// OpenJSONLines opens a .jsonl or .ndjson file
func OpenJSONLines(path string, opts Options) (*JSONLinesSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.SourceError(path, err)
	}
	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	src, err := NewJSONLinesSource(path, file, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	src.closer = file
	src.size = size
	return src, nil
}

// NewJSONLinesSource reads from r, which the caller owns
func NewJSONLinesSource(name string, r io.Reader, opts Options) (*JSONLinesSource, error) {
	counter := &countingReader{r: r}
	scanner := bufio.NewScanner(counter)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLine)

	src := &JSONLinesSource{
		name:    name,
		scanner: scanner,
		counter: counter,
		coercer: opts.coercer(),
		logger:  opts.logger().With("JSONLinesSource"),
	}
	for len(src.pending) < jsonHeaderSample {
		record, err := src.scan()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.SourceError(name, err)
		}
		src.pending = append(src.pending, record)
	}
	if len(src.pending) == 0 {
		return nil, apperrors.SourceError(name, core.ErrEmptySource)
	}

	src.columns = jsonColumns(src.pending)
	src.logger.Debug("Opened %s (%d columns from %d records)", name, len(src.columns), len(src.pending))
	return src, nil
}

// scan returns the next non-blank line as a JSON object
func (s *JSONLinesSource) scan() (gjson.Result, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		if !gjson.Valid(text) {
			return gjson.Result{}, fmt.Errorf("line %d: invalid JSON", s.line)
		}
		record := gjson.Parse(text)
		if !record.IsObject() {
			return gjson.Result{}, fmt.Errorf("line %d: expected a JSON object, got %s", s.line, record.Type)
		}
		return record, nil
	}
	if err := s.scanner.Err(); err != nil {
		return gjson.Result{}, err
	}
	return gjson.Result{}, io.EOF
}

// Columns returns the inferred column names
func (s *JSONLinesSource) Columns() []string { return s.columns }

// Next returns the next record as tagged cells
func (s *JSONLinesSource) Next(ctx context.Context) (table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record gjson.Result
	if len(s.pending) > 0 {
		record = s.pending[0]
		s.pending = s.pending[1:]
	} else {
		var err error
		if record, err = s.scan(); err != nil {
			return nil, err
		}
	}
	return jsonRow(record, s.columns, s.coercer), nil
}

// Progress reports bytes consumed against the file size (0 when unknown)
func (s *JSONLinesSource) Progress() (consumed, total int64) {
	return s.counter.n, s.size
}

// Close releases the underlying file, if any
func (s *JSONLinesSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// jsonColumns collects object keys in first-seen order
func jsonColumns(records []gjson.Result) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, record := range records {
		record.ForEach(func(key, _ gjson.Result) bool {
			if !seen[key.Str] {
				seen[key.Str] = true
				columns = append(columns, key.Str)
			}
			return true
		})
	}
	return headerNames(columns)
}

// jsonRow lays an object out along columns. Missing keys are absent cells.
func jsonRow(record gjson.Result, columns []string, c *coercer.CellCoercer) table.Row {
	values := make(map[string]gjson.Result, len(columns))
	record.ForEach(func(key, value gjson.Result) bool {
		values[key.Str] = value
		return true
	})

	row := make(table.Row, len(columns))
	for j, name := range columns {
		value, ok := values[name]
		if !ok {
			row[j] = table.Absent()
			continue
		}
		row[j] = jsonCell(value, c)
	}
	return row
}

// jsonCell maps a JSON value onto a cell. Strings go through the coercer so
// quoted numbers and null tokens behave as they do in delimited files.
func jsonCell(value gjson.Result, c *coercer.CellCoercer) table.Cell {
	switch value.Type {
	case gjson.Null:
		return table.Null()
	case gjson.Number:
		return table.NumberWithRaw(value.Num, value.Raw)
	case gjson.String:
		return c.ParseCell(value.Str)
	case gjson.True, gjson.False:
		return table.Text(value.Raw)
	}
	// nested objects and arrays are profiled as their JSON text
	return table.Text(value.Raw)
}

// countingReader counts bytes read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
