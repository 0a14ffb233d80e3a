package multivariate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"goprofile/domain/profiling"
)

func (e *Engine) pca(p *prepared) *profiling.PCAResult {
	res := &profiling.PCAResult{
		Method:          profiling.MethodPCA,
		ExcludedColumns: p.excluded,
		Warnings:        append([]string(nil), p.warnings...),
	}
	if !p.applicable {
		res.ApplicabilityReason = p.reason
		return res
	}

	rows, cols := p.z.Dims()
	res.IsApplicable = true
	res.Columns = p.names
	res.SampleSize = rows

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, p.z, nil)
	r := make([][]float64, cols)
	for i := range r {
		r[i] = make([]float64, cols)
		for j := range r[i] {
			r[i][j] = corr.At(i, j)
		}
	}

	pairs, sweeps := jacobiEigen(r, e.config.JacobiTolerance, e.config.JacobiMaxSweeps)
	if sweeps == e.config.JacobiMaxSweeps {
		res.Warnings = append(res.Warnings, fmt.Sprintf("eigen-decomposition stopped after %d sweeps without full convergence", sweeps))
	}

	total := 0.0
	for _, pair := range pairs {
		total += math.Max(pair.value, 0)
	}

	cumulative := 0.0
	for i, pair := range pairs {
		value := math.Max(pair.value, 0)
		ratio := 0.0
		if total > 0 {
			ratio = value / total
		}
		cumulative += ratio

		loadings := make(map[string]float64, cols)
		for j, name := range p.names {
			loadings[name] = pair.vector[j]
		}
		res.Components = append(res.Components, profiling.PrincipalComponent{
			Index:                  i + 1,
			Eigenvalue:             pair.value,
			ExplainedVarianceRatio: ratio,
			CumulativeRatio:        math.Min(cumulative, 1),
			Loadings:               loadings,
			DominantFeatures:       dominant(p.names, pair.vector, e.config.DominantFeatures),
		})
	}

	for _, threshold := range e.config.VarianceThresholds {
		count := len(res.Components)
		for _, c := range res.Components {
			if c.CumulativeRatio >= threshold-1e-12 {
				count = c.Index
				break
			}
		}
		res.VarianceThresholds = append(res.VarianceThresholds, profiling.VarianceThreshold{Threshold: threshold, Components: count})
	}

	for i := 0; i < cols; i++ {
		for j := i + 1; j < cols; j++ {
			rij := r[i][j]
			if math.Abs(rij) < e.config.RedundancyThreshold {
				continue
			}
			level := "near-perfect"
			if math.Abs(rij) >= e.config.PerfectThreshold {
				level = "perfect"
			}
			res.RedundantPairs = append(res.RedundantPairs, profiling.RedundantPair{
				ColumnA:     p.names[i],
				ColumnB:     p.names[j],
				Correlation: rij,
				Level:       level,
			})
		}
	}

	if w := e.conditionWarning(p.names, pairs); w != "" {
		res.Warnings = append(res.Warnings, w)
		e.logger.Debug("%s", w)
	}
	return res
}

// conditionWarning reports a singular or ill-conditioned correlation matrix.
// The columns named are those loading on the smallest eigenvector, which spans
// the linear dependency.
func (e *Engine) conditionWarning(names []string, pairs []eigenPair) string {
	if len(pairs) == 0 {
		return ""
	}
	largest := pairs[0].value
	smallest := pairs[len(pairs)-1]

	var kind string
	switch {
	case smallest.value < e.config.SingularEigenvalue:
		kind = "singular"
	case largest > 0 && smallest.value/largest < e.config.IllConditionedRatio:
		kind = "ill-conditioned"
	default:
		return ""
	}

	var involved []string
	for j, w := range smallest.vector {
		if math.Abs(w) >= 0.1 {
			involved = append(involved, names[j])
		}
	}
	return fmt.Sprintf("correlation matrix is %s (smallest eigenvalue %.3g); linear dependency among: %s",
		kind, smallest.value, strings.Join(involved, ", "))
}

// dominant returns the names with the largest absolute loadings
func dominant(names []string, vector []float64, k int) []string {
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(vector[order[a]]) > math.Abs(vector[order[b]])
	})
	if k > len(order) {
		k = len(order)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = names[order[i]]
	}
	return out
}
