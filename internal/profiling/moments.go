package profiling

import (
	"math"

	domain "goprofile/domain/profiling"
)

// MomentEstimator keeps running mean/variance/min/max with Welford's update.
// It never buffers values.
type MomentEstimator struct {
	n       int64
	skipped int64
	mean    float64
	m2      float64
	min     float64
	max     float64
}

// NewMomentEstimator creates an empty estimator
func NewMomentEstimator() *MomentEstimator {
	return &MomentEstimator{min: math.Inf(1), max: math.Inf(-1)}
}

// Update folds one value in. Non-finite values are counted and skipped.
func (m *MomentEstimator) Update(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		m.skipped++
		return
	}

	m.n++
	delta := value - m.mean
	m.mean += delta / float64(m.n)
	delta2 := value - m.mean
	m.m2 += delta * delta2

	if value < m.min {
		m.min = value
	}
	if value > m.max {
		m.max = value
	}
}

// Count returns the number of finite values seen
func (m *MomentEstimator) Count() int64 { return m.n }

// Skipped returns the number of non-finite values ignored
func (m *MomentEstimator) Skipped() int64 { return m.skipped }

// Mean returns the running mean (0 when empty)
func (m *MomentEstimator) Mean() float64 { return m.mean }

// Variance returns the sample variance, 0 for fewer than two values
func (m *MomentEstimator) Variance() float64 {
	if m.n < 2 {
		return 0
	}
	return m.m2 / float64(m.n-1)
}

// StdDev returns the sample standard deviation
func (m *MomentEstimator) StdDev() float64 {
	return math.Sqrt(m.Variance())
}

// Summary takes an immutable snapshot
func (m *MomentEstimator) Summary() domain.StatisticalSummary {
	s := domain.StatisticalSummary{
		Count:    m.n,
		Skipped:  m.skipped,
		Mean:     m.mean,
		Variance: m.Variance(),
		StdDev:   m.StdDev(),
	}
	if m.n > 0 {
		s.Min = m.min
		s.Max = m.max
	}
	return s
}

// MergeMoments combines two estimators built over disjoint row ranges of the
// same column (pooled mean and M2). Only moments are mergeable; quantile and
// reservoir state must never be combined this way.
func MergeMoments(a, b *MomentEstimator) *MomentEstimator {
	out := NewMomentEstimator()
	out.skipped = a.skipped + b.skipped

	switch {
	case a.n == 0 && b.n == 0:
		return out
	case a.n == 0:
		out.n, out.mean, out.m2, out.min, out.max = b.n, b.mean, b.m2, b.min, b.max
		return out
	case b.n == 0:
		out.n, out.mean, out.m2, out.min, out.max = a.n, a.mean, a.m2, a.min, a.max
		return out
	}

	n := a.n + b.n
	delta := b.mean - a.mean
	na, nb, nt := float64(a.n), float64(b.n), float64(n)

	out.n = n
	out.mean = a.mean + delta*nb/nt
	out.m2 = a.m2 + b.m2 + delta*delta*na*nb/nt
	out.min = math.Min(a.min, b.min)
	out.max = math.Max(a.max, b.max)
	return out
}
