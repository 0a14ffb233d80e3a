package sources

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/core"
	"goprofile/domain/table"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// XLSXSource streams one worksheet through the excelize row iterator
type XLSXSource struct {
	name    string
	sheet   string
	file    *excelize.File
	rows    *excelize.Rows
	columns []string
	total   int64 // data rows from the sheet dimension, -1 when unknown
	coercer *coercer.CellCoercer
	logger  *internal.Logger
}

var (
	_ ports.ClosableRowSource = (*XLSXSource)(nil)
	_ ports.RowCounter        = (*XLSXSource)(nil)
)

// OpenXLSX opens the named sheet of a workbook, or the first one when
// opts.Sheet is empty, and reads its header row
func OpenXLSX(path string, opts Options) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.SourceError(path, err)
	}

	src, err := newXLSXSource(path, f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewXLSXSource reads a workbook from r, as for an upload. excelize buffers
// the archive, so r is consumed before the first row is returned.
func NewXLSXSource(name string, r io.Reader, opts Options) (*XLSXSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.SourceError(name, err)
	}

	src, err := newXLSXSource(name, f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func newXLSXSource(path string, f *excelize.File, opts Options) (*XLSXSource, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.SourceError(path, core.ErrEmptySource)
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("sheet %q in %s", sheet, path))
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, apperrors.SourceError(path, err)
	}

	var header []string
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			rows.Close()
			return nil, apperrors.SourceError(path, err)
		}
		if !blank(cells) {
			header = cells
			break
		}
	}
	if header == nil {
		rows.Close()
		if err := rows.Error(); err != nil {
			return nil, apperrors.SourceError(path, err)
		}
		return nil, apperrors.SourceError(path, core.ErrEmptySource)
	}

	src := &XLSXSource{
		name:    path,
		sheet:   sheet,
		file:    f,
		rows:    rows,
		columns: headerNames(header),
		total:   dataRows(f, sheet),
		coercer: opts.coercer(),
		logger:  opts.logger().With("XLSXSource"),
	}
	src.logger.Debug("Opened %s sheet %q (%d columns)", path, sheet, len(src.columns))
	return src, nil
}

// dataRows reads the row count below the header from the sheet dimension
func dataRows(f *excelize.File, sheet string) int64 {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return -1
	}
	parts := strings.Split(dim, ":")
	_, last, err := excelize.CellNameToCoordinates(parts[len(parts)-1])
	if err != nil || last <= 1 {
		return -1
	}
	return int64(last - 1)
}

// Columns returns the header names
func (s *XLSXSource) Columns() []string { return s.columns }

// Sheet returns the worksheet being read
func (s *XLSXSource) Sheet() string { return s.sheet }

// Name returns the path or upload name the workbook was read from
func (s *XLSXSource) Name() string { return s.name }

// Next returns the next non-blank row. Cell values are the formatted text
// excelize renders, coerced the same way as delimited fields.
func (s *XLSXSource) Next(ctx context.Context) (table.Row, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.rows.Next() {
			if err := s.rows.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		cells, err := s.rows.Columns()
		if err != nil {
			return nil, err
		}
		if blank(cells) {
			continue
		}
		if len(cells) > len(s.columns) {
			cells = cells[:len(s.columns)]
		}
		row := make(table.Row, len(cells))
		for j, v := range cells {
			row[j] = s.coercer.ParseCell(v)
		}
		return row, nil
	}
}

// TotalRows reports the data row count recorded in the sheet dimension
func (s *XLSXSource) TotalRows() (int64, bool) {
	return s.total, s.total >= 0
}

// Close releases the iterator and the workbook
func (s *XLSXSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
