package testkit

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/adapters/sources"
	"goprofile/domain/table"
	"goprofile/internal"
)

func smallConfig(rows int) TransactionGeneratorConfig {
	cfg := DefaultTransactionConfig()
	cfg.Rows = rows
	return cfg
}

func TestTransactionGeneratorIsDeterministic(t *testing.T) {
	a := NewTransactionGenerator(smallConfig(50))
	b := NewTransactionGenerator(smallConfig(50))
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Record(), b.Record())
	}
	assert.Nil(t, a.Record())
	assert.Equal(t, 0, a.Remaining())
}

func TestTransactionGeneratorDistributions(t *testing.T) {
	gen := NewTransactionGenerator(smallConfig(5000))
	var missing, returned int
	for rec := gen.Record(); rec != nil; rec = gen.Record() {
		require.Len(t, rec, len(TransactionColumns))
		if rec[13] == "" {
			missing++
		}
		if rec[14] == "Yes" {
			returned++
		}
	}
	assert.InDelta(t, 0.10, float64(missing)/5000, 0.02)
	assert.InDelta(t, 0.20, float64(returned)/5000, 0.025)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	gen := NewTransactionGenerator(smallConfig(120))

	n, err := gen.WriteCSV(context.Background(), &buf, internal.NewLogger(internal.LogLevelError))
	require.NoError(t, err)
	assert.Equal(t, 120, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 121)
	assert.Equal(t, TransactionColumns, records[0])
	assert.Equal(t, "TXN00000001", records[1][0])
}

func TestWriteCSVStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTransactionGenerator(smallConfig(10)).WriteCSV(ctx, io.Discard, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorSourceCells(t *testing.T) {
	src := NewTransactionGenerator(smallConfig(3)).Source()
	assert.Equal(t, TransactionColumns, src.Columns())

	row, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, table.CellText, row[0].Kind)
	assert.Equal(t, table.CellNumber, row[5].Kind) // quantity
	assert.Equal(t, table.CellNumber, row[6].Kind) // unit_price

	for i := 0; i < 2; i++ {
		_, err = src.Next(context.Background())
		require.NoError(t, err)
	}
	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySourceFromValues([]string{"a", "b"}, [][]interface{}{
		{1, "x"},
		{nil, 2.5},
	})
	total, known := src.TotalRows()
	assert.True(t, known)
	assert.Equal(t, int64(2), total)

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, first[0].Num)
	second, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, table.CellNull, second[0].Kind)

	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)

	require.NoError(t, src.Close())
	_, err = src.Next(context.Background())
	assert.NoError(t, err)
}

func TestTransactions(t *testing.T) {
	src := Transactions(25, 7)
	assert.Len(t, src.Rows(), 25)
	again := Transactions(25, 7)
	assert.Equal(t, src.Rows(), again.Rows())
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewTransactionGenerator(smallConfig(40)).WriteXLSX(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	opts := sources.DefaultOptions()
	opts.Logger = internal.NewLogger(internal.LogLevelError)
	src, err := sources.Open(path, opts)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, TransactionColumns, src.Columns())
	count := 0
	for {
		row, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, table.CellNumber, row[5].Kind)
		count++
	}
	assert.Equal(t, 40, count)
}
