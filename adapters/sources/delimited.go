package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/core"
	"goprofile/domain/table"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// candidate delimiters, in tie-break order
var delimiters = []rune{',', ';', '\t', '|'}

const sniffBytes = 64 * 1024

// DelimitedSource streams CSV-like text one record at a time
type DelimitedSource struct {
	name      string
	reader    *csv.Reader
	closer    io.Closer
	size      int64
	columns   []string
	delimiter rune
	coercer   *coercer.CellCoercer
	logger    *internal.Logger
}

var (
	_ ports.ClosableRowSource = (*DelimitedSource)(nil)
	_ ports.ProgressReporter  = (*DelimitedSource)(nil)
)

// OpenDelimited opens a delimited text file and reads its header row
func OpenDelimited(path string, opts Options) (*DelimitedSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.SourceError(path, err)
	}
	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	src, err := NewDelimitedSource(path, file, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	src.closer = file
	src.size = size
	return src, nil
}

// NewDelimitedSource reads from r, which the caller owns. name labels errors
// and log lines.
func NewDelimitedSource(name string, r io.Reader, opts Options) (*DelimitedSource, error) {
	buffered := bufio.NewReaderSize(r, sniffBytes)
	delimiter := opts.Delimiter
	if delimiter == 0 {
		head, _ := buffered.Peek(sniffBytes)
		delimiter = SniffDelimiter(head)
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.SourceError(name, core.ErrEmptySource)
	}
	if err != nil {
		return nil, apperrors.SourceError(name, err)
	}

	src := &DelimitedSource{
		name:      name,
		reader:    reader,
		columns:   headerNames(header),
		delimiter: delimiter,
		coercer:   opts.coercer(),
		logger:    opts.logger().With("DelimitedSource"),
	}
	src.logger.Debug("Opened %s (%d columns, delimiter %q)", name, len(src.columns), delimiter)
	return src, nil
}

// Columns returns the header names
func (s *DelimitedSource) Columns() []string { return s.columns }

// Delimiter returns the field separator in use
func (s *DelimitedSource) Delimiter() rune { return s.delimiter }

// Next returns the next record as tagged cells
func (s *DelimitedSource) Next(ctx context.Context) (table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("line %d: %w", parseErr.Line, parseErr.Err)
		}
		return nil, err
	}

	if len(record) > len(s.columns) {
		record = record[:len(s.columns)]
	}
	row := make(table.Row, len(record))
	for j, field := range record {
		row[j] = s.coercer.ParseCell(field)
	}
	return row, nil
}

// Progress reports bytes consumed against the file size (0 when unknown)
func (s *DelimitedSource) Progress() (consumed, total int64) {
	return s.reader.InputOffset(), s.size
}

// Close releases the underlying file, if this source opened it
func (s *DelimitedSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SniffDelimiter picks the candidate that splits the first lines into the
// same non-zero number of fields. Quoted sections are ignored. Without a
// consistent candidate the one most frequent in the header wins; with no
// candidate at all it falls back to a comma.
func SniffDelimiter(head []byte) rune {
	lines := sampleLines(head, 10)
	if len(lines) == 0 {
		return ','
	}

	best, bestCount := ',', 0
	fallback, fallbackCount := ',', 0
	for _, d := range delimiters {
		first := countOutsideQuotes(lines[0], d)
		if first > fallbackCount {
			fallback, fallbackCount = d, first
		}
		if first == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if countOutsideQuotes(line, d) != first {
				consistent = false
				break
			}
		}
		if consistent && first > bestCount {
			best, bestCount = d, first
		}
	}
	if bestCount > 0 {
		return best
	}
	return fallback
}

// sampleLines returns up to n complete, non-blank lines of head
func sampleLines(head []byte, n int) []string {
	head = bytes.TrimPrefix(head, []byte("\ufeff"))
	complete := len(head)
	if i := bytes.LastIndexByte(head, '\n'); i >= 0 && i < len(head)-1 {
		complete = i + 1
	}

	var lines []string
	for _, line := range strings.Split(string(head[:complete]), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}

func countOutsideQuotes(line string, d rune) int {
	count := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			count++
		}
	}
	return count
}

// headerNames trims names, strips a byte order mark and makes every name
// unique and non-empty
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		names[i] = name
	}
	return names
}
