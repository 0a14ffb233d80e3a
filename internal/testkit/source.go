package testkit

import (
	"context"
	"io"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/table"
	"goprofile/ports"
)

// MemorySource replays rows held in memory as a row source
type MemorySource struct {
	columns []string
	rows    []table.Row
	next    int
}

var (
	_ ports.ClosableRowSource = (*MemorySource)(nil)
	_ ports.RowCounter        = (*MemorySource)(nil)
)

// NewMemorySource wraps already tagged rows
func NewMemorySource(columns []string, rows []table.Row) *MemorySource {
	return &MemorySource{columns: columns, rows: rows}
}

// NewMemorySourceFromRecords coerces raw string records the way file sources do
func NewMemorySourceFromRecords(columns []string, records [][]string) *MemorySource {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		rows[i] = parseRecord(rec)
	}
	return NewMemorySource(columns, rows)
}

// NewMemorySourceFromValues converts typed values, nil meaning null
func NewMemorySourceFromValues(columns []string, values [][]interface{}) *MemorySource {
	rows := make([]table.Row, len(values))
	for i, vals := range values {
		row := make(table.Row, len(vals))
		for j, v := range vals {
			row[j] = coercer.FromValue(v)
		}
		rows[i] = row
	}
	return NewMemorySource(columns, rows)
}

func (m *MemorySource) Columns() []string { return m.columns }

func (m *MemorySource) Next(ctx context.Context) (table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.next >= len(m.rows) {
		return nil, io.EOF
	}
	row := m.rows[m.next]
	m.next++
	return row, nil
}

// Rows returns the underlying rows
func (m *MemorySource) Rows() []table.Row { return m.rows }

func (m *MemorySource) TotalRows() (int64, bool) { return int64(len(m.rows)), true }

// Close rewinds the source
func (m *MemorySource) Close() error {
	m.next = 0
	return nil
}

// Transactions materializes n generated transactions with the given seed
func Transactions(n int, seed int64) *MemorySource {
	cfg := DefaultTransactionConfig()
	cfg.Rows = n
	cfg.Seed = seed
	gen := NewTransactionGenerator(cfg)

	records := make([][]string, 0, n)
	for rec := gen.Record(); rec != nil; rec = gen.Record() {
		records = append(records, rec)
	}
	return NewMemorySourceFromRecords(TransactionColumns, records)
}
