package profiling

import (
	"fmt"
	"math"
	"sort"

	domain "goprofile/domain/profiling"
)

// QuantileEstimator tracks one target percentile with the P² algorithm
// (Jain & Chlamtac). Memory is fixed at five markers. The estimate depends on
// arrival order and two estimators cannot be merged.
type QuantileEstimator struct {
	p     float64
	count int64

	initial []float64 // first five observations, until markers exist

	q  [5]float64 // marker heights
	n  [5]int64   // actual positions (1-based)
	np [5]float64 // desired positions
	dn [5]float64 // desired position increments
}

// NewQuantileEstimator creates an estimator for p in (0,1)
func NewQuantileEstimator(p float64) (*QuantileEstimator, error) {
	if !(p > 0 && p < 1) {
		return nil, fmt.Errorf("quantile target must be in (0,1), got %v", p)
	}
	return &QuantileEstimator{
		p:       p,
		initial: make([]float64, 0, 5),
		dn:      [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}, nil
}

// Target returns the tracked percentile
func (e *QuantileEstimator) Target() float64 { return e.p }

// Count returns the number of observations
func (e *QuantileEstimator) Count() int64 { return e.count }

// Update adds one finite observation. Callers filter non-finite values.
func (e *QuantileEstimator) Update(x float64) {
	e.count++

	if e.count <= 5 {
		e.initial = append(e.initial, x)
		if e.count == 5 {
			e.initMarkers()
		}
		return
	}

	// Find cell k such that q[k] <= x < q[k+1], extending the extremes
	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x < e.q[1]:
		k = 0
	case x < e.q[2]:
		k = 1
	case x < e.q[3]:
		k = 2
	case x <= e.q[4]:
		k = 3
	default:
		e.q[4] = x
		k = 3
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	for i := 1; i <= 3; i++ {
		d := e.np[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			step := int64(1)
			if d < 0 {
				step = -1
			}
			candidate := e.parabolic(i, float64(step))
			if e.q[i-1] < candidate && candidate < e.q[i+1] {
				e.q[i] = candidate
			} else {
				e.q[i] = e.linear(i, step)
			}
			e.n[i] += step
		}
	}
}

func (e *QuantileEstimator) initMarkers() {
	sort.Float64s(e.initial)
	p := e.p
	for i := 0; i < 5; i++ {
		e.q[i] = e.initial[i]
		e.n[i] = int64(i + 1)
	}
	e.np = [5]float64{1, 1 + 2*p, 1 + 4*p, 3 + 2*p, 5}
	e.initial = nil
}

// parabolic is the P² piecewise-parabolic prediction for marker i moved by d
func (e *QuantileEstimator) parabolic(i int, d float64) float64 {
	ni := float64(e.n[i])
	nPrev := float64(e.n[i-1])
	nNext := float64(e.n[i+1])
	return e.q[i] + d/(nNext-nPrev)*
		((ni-nPrev+d)*(e.q[i+1]-e.q[i])/(nNext-ni)+
			(nNext-ni-d)*(e.q[i]-e.q[i-1])/(ni-nPrev))
}

func (e *QuantileEstimator) linear(i int, d int64) float64 {
	j := i + int(d)
	return e.q[i] + float64(d)*(e.q[j]-e.q[i])/float64(e.n[j]-e.n[i])
}

// Value returns the current estimate. Before five observations it is the
// nearest-rank value of the buffered observations; with none it is NaN.
func (e *QuantileEstimator) Value() float64 {
	if e.count == 0 {
		return math.NaN()
	}
	if e.count < 5 {
		buf := append([]float64(nil), e.initial...)
		sort.Float64s(buf)
		rank := int(math.Ceil(e.p*float64(len(buf)))) - 1
		if rank < 0 {
			rank = 0
		}
		return buf[rank]
	}
	return e.q[2]
}

// Estimate takes a snapshot. An empty estimator reports 0 as its value so the
// snapshot stays JSON-encodable; Count tells the two cases apart.
func (e *QuantileEstimator) Estimate() domain.QuantileEstimate {
	est := domain.QuantileEstimate{
		TargetPercentile: e.p,
		Count:            e.count,
	}
	if e.count > 0 {
		est.EstimatedValue = e.Value()
	}
	if e.count >= 5 {
		est.Markers = &domain.MarkerState{
			Positions:        e.n,
			DesiredPositions: e.np,
			Heights:          e.q,
		}
	}
	return est
}
