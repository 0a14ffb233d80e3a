package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/adapters/memory"
	"goprofile/domain/core"
	domain "goprofile/domain/profiling"
	"goprofile/domain/table"
	"goprofile/internal"
	"goprofile/internal/config"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func orders(n int) ([]string, []table.Row) {
	rng := rand.New(rand.NewSource(7))
	segments := []string{"retail", "wholesale", "online"}
	rows := make([]table.Row, n)
	for i := range rows {
		amount := 50 + 20*rng.NormFloat64()
		rows[i] = table.Row{
			table.Number(float64(i + 1)),
			table.Number(amount),
			table.Number(amount*0.2 + rng.NormFloat64()),
			table.Text(segments[rng.Intn(len(segments))]),
		}
	}
	return []string{"order_id", "amount", "tax", "segment"}, rows
}

func newTestEngine(t *testing.T, mutate func(*Config), monitor ports.MemoryMonitor) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.ReservoirSize = 200
	cfg.BatchSize = 64
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, EngineDeps{Memory: monitor, Logger: quiet})
	require.NoError(t, err)
	return e
}

// uncounted hides TotalRows so the engine cannot learn the source size
type uncounted struct{ ports.RowSource }

func source(columns []string, rows []table.Row) *matrixSource {
	return &matrixSource{columns: columns, rows: rows}
}

func columnValues(rows []table.Row, j int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[j].Num
	}
	return out
}

func TestAnalyzeStreamProfilesEveryColumn(t *testing.T) {
	columns, rows := orders(1000)
	e := newTestEngine(t, nil, nil)

	res, err := e.AnalyzeStream(context.Background(), "orders.csv", source(columns, rows))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), res.RowsRead)
	assert.Equal(t, 200, res.RowsRetained)
	assert.False(t, res.Sampled)
	require.NotNil(t, res.ObservedFraction)
	assert.Equal(t, 1.0, *res.ObservedFraction)
	assert.Equal(t, 1, res.SamplingStride)
	assert.False(t, res.RunID.IsEmpty())
	require.Len(t, res.Columns, 4)

	amount, ok := res.Column("amount")
	require.True(t, ok)
	wantMean, _ := stats.Mean(columnValues(rows, 1))
	wantVar, _ := stats.SampleVariance(columnValues(rows, 1))
	assert.InDelta(t, wantMean, amount.Summary.Mean, 1e-9)
	assert.InDelta(t, wantVar, amount.Summary.Variance, 1e-6)
	assert.Equal(t, int64(1000), amount.NumericCount)
	assert.Equal(t, domain.DataTypeNumericFloat, amount.Type.DataType)
	require.Len(t, amount.Quantiles, 4)
	median, ok := amount.Quantile(0.5)
	require.True(t, ok)
	wantMedian, _ := stats.Median(columnValues(rows, 1))
	assert.InDelta(t, wantMedian, median.EstimatedValue, 3.0)

	id, _ := res.Column("order_id")
	assert.Equal(t, domain.DataTypeNumericInteger, id.Type.DataType)

	segment, _ := res.Column("segment")
	assert.Equal(t, domain.DataTypeCategorical, segment.Type.DataType)
	assert.Equal(t, int64(1000), segment.TextCount)
	assert.Equal(t, int64(0), segment.Summary.Count)

	// every column shares the same retained rows
	for _, c := range res.Columns {
		assert.Equal(t, res.Columns[0].Sample.RowIndices, c.Sample.RowIndices)
		assert.Equal(t, int64(1000), c.Sample.CountSeen)
	}

	require.NotNil(t, res.PCA)
	assert.True(t, res.PCA.IsApplicable, res.PCA.ApplicabilityReason)
	assert.Equal(t, []string{"order_id", "amount", "tax"}, res.PCA.Columns)
	require.NotNil(t, res.Outliers)
	assert.True(t, res.Outliers.IsApplicable, res.Outliers.ApplicabilityReason)
}

func TestAnalyzeStreamIsIdempotentWithSeed(t *testing.T) {
	columns, rows := orders(800)
	e := newTestEngine(t, func(c *Config) { c.ReservoirSize = 50 }, nil)

	first, err := e.AnalyzeStream(context.Background(), "a", source(columns, rows))
	require.NoError(t, err)
	second, err := e.AnalyzeStream(context.Background(), "a", source(columns, rows))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	for j := range first.Columns {
		a, b := first.Columns[j], second.Columns[j]
		assert.Equal(t, a.Sample.RowIndices, b.Sample.RowIndices)
		assert.Equal(t, a.Summary, b.Summary)
		assert.Equal(t, a.Quantiles, b.Quantiles)
		assert.Equal(t, a.Type, b.Type)
	}
	assert.Equal(t, first.PCA, second.PCA)
	assert.Equal(t, first.Outliers, second.Outliers)
}

func TestAnalyzeMatrixMatchesStream(t *testing.T) {
	columns, rows := orders(1500)
	e := newTestEngine(t, func(c *Config) { c.ColumnWorkers = 3 }, nil)

	streamed, err := e.AnalyzeStream(context.Background(), "m", source(columns, rows))
	require.NoError(t, err)
	matrix, err := e.AnalyzeMatrix(context.Background(), "m", columns, rows)
	require.NoError(t, err)

	assert.Equal(t, streamed.RowsRead, matrix.RowsRead)
	for j := range streamed.Columns {
		s, m := streamed.Columns[j].Summary, matrix.Columns[j].Summary
		assert.Equal(t, s.Count, m.Count)
		assert.InDelta(t, s.Mean, m.Mean, 1e-9)
		assert.InDelta(t, s.Variance, m.Variance, 1e-6)
		assert.Equal(t, s.Min, m.Min)
		assert.Equal(t, s.Max, m.Max)
		assert.Equal(t, streamed.Columns[j].Quantiles, matrix.Columns[j].Quantiles)
		assert.Equal(t, streamed.Columns[j].Sample.RowIndices, matrix.Columns[j].Sample.RowIndices)
		assert.Equal(t, streamed.Columns[j].Type, matrix.Columns[j].Type)
	}
	require.True(t, matrix.PCA.IsApplicable)
	for i := range streamed.PCA.Components {
		assert.InDelta(t, streamed.PCA.Components[i].Eigenvalue, matrix.PCA.Components[i].Eigenvalue, 1e-6)
	}
}

func TestAnalyzeMatrixRowCap(t *testing.T) {
	columns, rows := orders(400)
	e := newTestEngine(t, func(c *Config) { c.MaxRows = 100 }, nil)

	res, err := e.AnalyzeMatrix(context.Background(), "m", columns, rows)
	require.NoError(t, err)
	assert.True(t, res.Sampled)
	assert.Equal(t, int64(100), res.RowsRead)
	require.NotNil(t, res.ObservedFraction)
	assert.InDelta(t, 0.25, *res.ObservedFraction, 1e-12)
	amount, _ := res.Column("amount")
	assert.Equal(t, int64(100), amount.Summary.Count)
}

func TestColumnWorkersMatchSequential(t *testing.T) {
	columns, rows := orders(700)
	sequential := newTestEngine(t, nil, nil)
	parallel := newTestEngine(t, func(c *Config) { c.ColumnWorkers = 3 }, nil)

	a, err := sequential.AnalyzeStream(context.Background(), "s", source(columns, rows))
	require.NoError(t, err)
	b, err := parallel.AnalyzeStream(context.Background(), "s", source(columns, rows))
	require.NoError(t, err)

	for j := range a.Columns {
		assert.Equal(t, a.Columns[j].Summary, b.Columns[j].Summary)
		assert.Equal(t, a.Columns[j].Quantiles, b.Columns[j].Quantiles)
		assert.Equal(t, a.Columns[j].Sample.RowIndices, b.Columns[j].Sample.RowIndices)
	}
}

func TestRowCap(t *testing.T) {
	columns, rows := orders(1000)

	t.Run("known row count", func(t *testing.T) {
		e := newTestEngine(t, func(c *Config) { c.MaxRows = 100 }, nil)
		res, err := e.AnalyzeStream(context.Background(), "capped", source(columns, rows))
		require.NoError(t, err)
		assert.True(t, res.Sampled)
		assert.Equal(t, int64(100), res.RowsRead)
		require.NotNil(t, res.ObservedFraction)
		assert.InDelta(t, 0.1, *res.ObservedFraction, 1e-12)
		amount, _ := res.Column("amount")
		assert.Equal(t, int64(100), amount.Summary.Count)
		assert.Contains(t, res.Warnings, "row cap of 100 reached; statistics describe the first 100 rows")
	})

	t.Run("unknown size", func(t *testing.T) {
		e := newTestEngine(t, func(c *Config) { c.MaxRows = 100 }, nil)
		res, err := e.AnalyzeStream(context.Background(), "capped", uncounted{source(columns, rows)})
		require.NoError(t, err)
		assert.True(t, res.Sampled)
		assert.Nil(t, res.ObservedFraction)
		assert.Contains(t, res.Warnings, "row cap of 100 reached; source size unknown so the observed fraction is not reported")

		encoded, err := json.Marshal(res)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "observed_fraction")
	})

	t.Run("source ends at the cap", func(t *testing.T) {
		e := newTestEngine(t, func(c *Config) { c.MaxRows = 1000 }, nil)
		res, err := e.AnalyzeStream(context.Background(), "exact", source(columns, rows))
		require.NoError(t, err)
		assert.False(t, res.Sampled)
		require.NotNil(t, res.ObservedFraction)
		assert.Equal(t, 1.0, *res.ObservedFraction)
		assert.Equal(t, int64(1000), res.RowsRead)
	})
}

func TestCurrencyColumnFeedsStatistics(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	columns := []string{"quantity", "unit_price", "total"}
	rows := make([]table.Row, 300)
	prices := make([]float64, len(rows))
	for i := range rows {
		qty := float64(1 + rng.Intn(10))
		prices[i] = math.Round((5+20*rng.Float64())*100) / 100
		rows[i] = table.Row{
			table.Number(qty),
			coercer.ParseCell(fmt.Sprintf("$%.2f", prices[i])),
			table.Number(qty * prices[i]),
		}
	}
	e := newTestEngine(t, nil, nil)

	res, err := e.AnalyzeStream(context.Background(), "sales.csv", source(columns, rows))
	require.NoError(t, err)

	price, ok := res.Column("unit_price")
	require.True(t, ok)
	assert.Equal(t, domain.DataTypeNumericFloat, price.Type.DataType)
	assert.Equal(t, domain.SemanticCurrency, price.Type.SemanticType)
	assert.Equal(t, int64(300), price.Summary.Count)
	assert.Equal(t, int64(300), price.NumericCount)
	wantMean, _ := stats.Mean(prices)
	assert.InDelta(t, wantMean, price.Summary.Mean, 1e-9)
	median, ok := price.Quantile(0.5)
	require.True(t, ok)
	assert.Greater(t, median.EstimatedValue, 5.0)
	assert.Equal(t, "$", price.Sample.Values[0].String()[:1])

	require.True(t, res.PCA.IsApplicable, res.PCA.ApplicabilityReason)
	assert.Equal(t, columns, res.PCA.Columns)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "unit_price")
	}
}

func TestShortRowsCountAsNulls(t *testing.T) {
	columns := []string{"a", "b", "c"}
	rows := []table.Row{
		{table.Number(1), table.Number(2), table.Number(3)},
		{table.Number(4)},
		{table.Number(7), table.Null(), table.Number(9)},
	}
	e := newTestEngine(t, nil, nil)

	res, err := e.AnalyzeStream(context.Background(), "short", source(columns, rows))
	require.NoError(t, err)
	b, _ := res.Column("b")
	c, _ := res.Column("c")
	assert.Equal(t, int64(2), b.NullCount)
	assert.Equal(t, int64(1), c.NullCount)
	assert.Equal(t, int64(2), c.Summary.Count)
	assert.Equal(t, table.CellAbsent, c.Sample.Values[1].Kind)
	assert.False(t, res.PCA.IsApplicable)
}

type cancelAfter struct {
	ports.RowSource
	after  int
	read   int
	cancel context.CancelFunc
}

func (c *cancelAfter) Next(ctx context.Context) (table.Row, error) {
	c.read++
	if c.read == c.after {
		c.cancel()
	}
	return c.RowSource.Next(ctx)
}

type failingSource struct {
	ports.RowSource
	failAt int
	read   int
}

func (f *failingSource) Next(ctx context.Context) (table.Row, error) {
	f.read++
	if f.read == f.failAt {
		return nil, errors.New("disk gone")
	}
	return f.RowSource.Next(ctx)
}

func TestCancellationAbortsThePass(t *testing.T) {
	columns, rows := orders(500)
	e := newTestEngine(t, func(c *Config) { c.BatchSize = 10 }, nil)

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.AnalyzeStream(ctx, "c", source(columns, rows))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, apperrors.CodeCancelled, apperrors.GetCode(err))
	})

	t.Run("mid stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		src := &cancelAfter{RowSource: source(columns, rows), after: 55, cancel: cancel}
		_, err := e.AnalyzeStream(ctx, "c", src)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Less(t, src.read, 500)
	})
}

func TestSourceFailure(t *testing.T) {
	columns, rows := orders(50)
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.BatchSize = 64
	e, err := NewEngine(cfg, EngineDeps{Logger: internal.NewLoggerTo(&logs, internal.LogLevelError)})
	require.NoError(t, err)

	_, err = e.AnalyzeStream(context.Background(), "broken.csv", &failingSource{RowSource: source(columns, rows), failAt: 5})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSourceError, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "disk gone")
	assert.Contains(t, logs.String(), "Row source broken.csv failed after 4 rows")
	assert.Contains(t, err.Error(), "broken.csv")
}

func TestBackpressure(t *testing.T) {
	columns, rows := orders(100)
	mutate := func(c *Config) {
		c.ReservoirSize = 50
		c.MinReservoirSize = 20
		c.MaxStride = 8
		c.BatchSize = 10
	}

	t.Run("high pressure widens stride and shrinks the reservoir", func(t *testing.T) {
		monitor := memory.NewSequence(ports.MemoryPressureMedium, ports.MemoryPressureHigh)
		e := newTestEngine(t, mutate, monitor)

		res, err := e.AnalyzeStream(context.Background(), "bp", source(columns, rows))
		require.NoError(t, err)
		assert.Equal(t, int64(10), monitor.Polls())
		assert.Equal(t, 8, res.SamplingStride)
		assert.Equal(t, 20, res.ReservoirCapacity)
		assert.LessOrEqual(t, res.RowsRetained, 20)
		assert.Contains(t, res.Warnings, "reservoir stride widened to 2 after 10 rows under medium memory pressure")
		assert.Contains(t, res.Warnings, "reservoir capacity reduced to 25 after 20 rows under high memory pressure")

		// moments and quantiles still see every row
		amount, _ := res.Column("amount")
		assert.Equal(t, int64(100), amount.Summary.Count)
		assert.Equal(t, int64(100), amount.Quantiles[0].Count)
	})

	t.Run("low pressure restores the stride", func(t *testing.T) {
		monitor := memory.NewSequence(ports.MemoryPressureMedium, ports.MemoryPressureLow)
		e := newTestEngine(t, mutate, monitor)

		res, err := e.AnalyzeStream(context.Background(), "bp", source(columns, rows))
		require.NoError(t, err)
		assert.Equal(t, 1, res.SamplingStride)
		assert.Equal(t, 50, res.ReservoirCapacity)
		assert.Equal(t, 50, res.RowsRetained)
	})
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"negative reservoir": func(c *Config) { c.ReservoirSize = -1 },
		"zero batch size":    func(c *Config) { c.BatchSize = 0 },
		"quantile above one": func(c *Config) { c.Quantiles = []float64{0.5, 1.5} },
		"quantile of zero":   func(c *Config) { c.Quantiles = []float64{0} },
		"negative row cap":   func(c *Config) { c.MaxRows = -5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewEngine(cfg, EngineDeps{Logger: quiet})
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
			assert.True(t, core.IsConfigError(err))
		})
	}
}

func TestSessionStates(t *testing.T) {
	columns, rows := orders(20)
	e := newTestEngine(t, nil, nil)

	s, err := newSession("states", columns, e.config)
	require.NoError(t, err)
	assert.Equal(t, SessionStateIdle, s.State())

	require.NoError(t, e.stream(context.Background(), s, source(columns, rows)))
	assert.Equal(t, SessionStateStreaming, s.State())
	assert.Equal(t, int64(20), s.RowsRead())

	_, err = e.finish(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, SessionStateComplete, s.State())
}

// recorder collects progress events
type recorder struct {
	mu     sync.Mutex
	events []ports.ProgressEvent
}

func (r *recorder) OnProgress(event ports.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestProgressEvents(t *testing.T) {
	columns, rows := orders(64 * progressEvery * 2)
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.BatchSize = 64
	rec := &recorder{}
	e, err := NewEngine(cfg, EngineDeps{Progress: rec, Logger: quiet})
	require.NoError(t, err)

	result, err := e.AnalyzeStream(context.Background(), "progress", source(columns, rows))
	require.NoError(t, err)

	var stages []string
	var streaming []ports.ProgressEvent
	for _, ev := range rec.events {
		assert.Equal(t, result.RunID.String(), ev.RunID)
		if len(stages) == 0 || stages[len(stages)-1] != ev.Stage {
			stages = append(stages, ev.Stage)
		}
		if ev.Stage == string(SessionStateStreaming) && ev.RowsRead > 0 {
			streaming = append(streaming, ev)
		}
	}
	assert.Equal(t, []string{"streaming", "classifying", "analyzing", "complete"}, stages)
	require.Len(t, streaming, 2)
	assert.InDelta(t, 0.5, streaming[0].Fraction, 1e-9)
	assert.InDelta(t, 1.0, streaming[1].Fraction, 1e-9)
	assert.Equal(t, 1.0, rec.events[len(rec.events)-1].Fraction)
}

func TestProgressReportsError(t *testing.T) {
	columns, rows := orders(10)
	rec := &recorder{}
	e, err := NewEngine(DefaultConfig(), EngineDeps{Progress: rec, Logger: quiet})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.AnalyzeStream(ctx, "cancelled", source(columns, rows))
	require.Error(t, err)
	require.NotEmpty(t, rec.events)
	assert.Equal(t, string(SessionStateError), rec.events[len(rec.events)-1].Stage)
}

func TestSplitColumns(t *testing.T) {
	assert.Equal(t, []columnGroup{{0, 3}, {3, 5}}, splitColumns(5, 2))
	assert.Equal(t, []columnGroup{{0, 1}, {1, 2}}, splitColumns(2, 4))
	assert.Equal(t, []columnGroup{{0, 4}}, splitColumns(4, 1))
	assert.Nil(t, splitColumns(0, 3))
}

func TestConfigFrom(t *testing.T) {
	app := config.Default().Analysis
	app.MaxRows = 500
	app.Seed = 9
	app.ClassifierSampleSize = 40
	app.ColumnWorkers = 2

	cfg := ConfigFrom(app)
	assert.Equal(t, int64(500), cfg.MaxRows)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 40, cfg.Classifier.SampleSize)
	assert.Equal(t, 2, cfg.ColumnWorkers)
	assert.Equal(t, app.Quantiles, cfg.Quantiles)
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quantiles = nil
	e, err := NewEngine(cfg, EngineDeps{Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 0.9}, e.Config().Quantiles)
	assert.Equal(t, 100, e.Config().MinReservoirSize)
}
