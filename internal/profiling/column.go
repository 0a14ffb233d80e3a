package profiling

import (
	domain "goprofile/domain/profiling"
	"goprofile/domain/table"
)

// ColumnAccumulator owns the online state of one column: moments, the
// configured quantile estimators and cell-kind counters. Exactly one worker
// may feed a given accumulator.
type ColumnAccumulator struct {
	Name  string
	Index int

	moments   *MomentEstimator
	quantiles []*QuantileEstimator

	nulls    int64
	texts    int64
	numerics int64

	externalMoments bool
}

// NewColumnAccumulator creates the per-column state for the given quantile targets
func NewColumnAccumulator(name string, index int, targets []float64) (*ColumnAccumulator, error) {
	quantiles := make([]*QuantileEstimator, 0, len(targets))
	for _, p := range targets {
		q, err := NewQuantileEstimator(p)
		if err != nil {
			return nil, err
		}
		quantiles = append(quantiles, q)
	}
	return &ColumnAccumulator{
		Name:      name,
		Index:     index,
		moments:   NewMomentEstimator(),
		quantiles: quantiles,
	}, nil
}

// Observe dispatches one raw cell
func (c *ColumnAccumulator) Observe(cell table.Cell) {
	switch cell.Kind {
	case table.CellAbsent, table.CellNull:
		c.nulls++
	case table.CellText:
		c.texts++
	case table.CellNumber:
		c.numerics++
		if !c.externalMoments {
			c.moments.Update(cell.Num)
		}
		if cell.IsFiniteNumber() {
			for _, q := range c.quantiles {
				q.Update(cell.Num)
			}
		}
	}
}

// Moments exposes the moment estimator (read-only use after the pass)
func (c *ColumnAccumulator) Moments() *MomentEstimator { return c.moments }

// ExternalMoments stops Observe from updating moments. The caller supplies
// them through SetMoments, typically merged from independent row ranges.
func (c *ColumnAccumulator) ExternalMoments() { c.externalMoments = true }

// SetMoments replaces the moment estimator
func (c *ColumnAccumulator) SetMoments(m *MomentEstimator) { c.moments = m }

// Summary snapshots the moments
func (c *ColumnAccumulator) Summary() domain.StatisticalSummary {
	return c.moments.Summary()
}

// Quantiles snapshots every quantile estimator in configuration order
func (c *ColumnAccumulator) Quantiles() []domain.QuantileEstimate {
	out := make([]domain.QuantileEstimate, len(c.quantiles))
	for i, q := range c.quantiles {
		out[i] = q.Estimate()
	}
	return out
}

// Counts returns null, text and numeric cell counts
func (c *ColumnAccumulator) Counts() (nulls, texts, numerics int64) {
	return c.nulls, c.texts, c.numerics
}
