package multivariate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"goprofile/domain/profiling"
)

var severityOrder = []profiling.Severity{
	profiling.SeverityNone,
	profiling.SeverityMild,
	profiling.SeverityModerate,
	profiling.SeverityExtreme,
}

func (e *Engine) outliers(p *prepared) *profiling.OutlierResult {
	res := &profiling.OutlierResult{Method: profiling.MethodMahalanobis}
	if !p.applicable {
		res.ApplicabilityReason = p.reason
		return res
	}

	n, df := p.z.Dims()

	mean := make([]float64, df)
	for j := 0; j < df; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, p.z), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, p.z, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(&cov); !ok {
		res.ApplicabilityReason = "covariance matrix is singular; columns are linearly dependent"
		return res
	}
	if cond := chol.Cond(); cond > e.config.MaxConditionNumber {
		res.ApplicabilityReason = fmt.Sprintf("covariance matrix is ill-conditioned (condition number %.3g)", cond)
		return res
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		res.ApplicabilityReason = fmt.Sprintf("covariance matrix could not be inverted: %v", err)
		return res
	}

	res.IsApplicable = true
	res.Columns = p.names
	res.SampleSize = n
	res.DegreesOfFreedom = df

	chi := distuv.ChiSquared{K: float64(df)}
	mild := chi.Quantile(e.config.SeverityQuantiles[0])
	moderate := chi.Quantile(e.config.SeverityQuantiles[1])
	extreme := chi.Quantile(e.config.SeverityQuantiles[2])
	res.CriticalValues = map[profiling.Severity]float64{
		profiling.SeverityMild:     mild,
		profiling.SeverityModerate: moderate,
		profiling.SeverityExtreme:  extreme,
	}

	res.SeverityDistribution = make(map[profiling.Severity]int, len(severityOrder))
	for _, s := range severityOrder {
		res.SeverityDistribution[s] = 0
	}

	d := mat.NewVecDense(df, nil)
	var sd mat.VecDense
	impact := make(map[string]*profiling.VariableImpact, df)

	fn := float64(n)
	c := fn / (fn - 1)
	for i := 0; i < n; i++ {
		for j := 0; j < df; j++ {
			d.SetVec(j, p.z.At(i, j)-mean[j])
		}
		sd.MulVec(&inv, d)
		classical := mat.Dot(d, &sd)

		// Leave-one-out distance via Sherman-Morrison: the row is measured
		// against the mean and covariance of the other n-1 rows.
		a := classical / (fn - 1)
		denom := 1 - c*a
		if denom < 1e-12 {
			denom = 1e-12
		}
		d2 := c * c * (fn - 2) * a / denom

		severity := profiling.SeverityNone
		switch {
		case d2 > extreme:
			severity = profiling.SeverityExtreme
		case d2 > moderate:
			severity = profiling.SeverityModerate
		case d2 > mild:
			severity = profiling.SeverityMild
		}
		res.SeverityDistribution[severity]++

		contributions := make(map[string]float64, df)
		top, topValue := "", -1.0
		for j, name := range p.names {
			v := d.AtVec(j) * d.AtVec(j) * inv.At(j, j)
			contributions[name] = v
			if v > topValue {
				top, topValue = name, v
			}
		}

		if severity != profiling.SeverityNone {
			for name, v := range contributions {
				vi, ok := impact[name]
				if !ok {
					vi = &profiling.VariableImpact{Column: name}
					impact[name] = vi
				}
				vi.Contribution += v
			}
			impact[top].FlaggedRows++
		}

		res.Rows = append(res.Rows, profiling.RowOutlier{
			RowIndex:                   p.rowIndices[i],
			MahalanobisDistanceSquared: d2,
			Severity:                   severity,
			Contributions:              contributions,
		})
	}

	for _, name := range p.names {
		if vi, ok := impact[name]; ok {
			res.AffectedVariables = append(res.AffectedVariables, *vi)
		}
	}
	sort.SliceStable(res.AffectedVariables, func(i, j int) bool {
		return res.AffectedVariables[i].Contribution > res.AffectedVariables[j].Contribution
	})

	res.Recommendations = e.recommendations(res)
	return res
}

func (e *Engine) recommendations(res *profiling.OutlierResult) []string {
	flagged := res.SampleSize - res.SeverityDistribution[profiling.SeverityNone]
	if flagged == 0 {
		return []string{"No multivariate outliers detected; the sample is consistent with a single multivariate distribution"}
	}

	var recs []string
	extreme := res.SeverityDistribution[profiling.SeverityExtreme]
	fraction := float64(extreme) / float64(res.SampleSize)
	if fraction > e.config.ExtremeFractionAlert {
		recs = append(recs, fmt.Sprintf("%.1f%% of rows are extreme outliers (above %.0f%%); review data collection or use robust methods",
			100*fraction, 100*e.config.ExtremeFractionAlert))
	}
	if extreme > 0 {
		recs = append(recs, fmt.Sprintf("Inspect the %d extreme row(s) before fitting models sensitive to outliers", extreme))
	}
	if len(res.AffectedVariables) > 0 {
		recs = append(recs, fmt.Sprintf("Column %q contributes most to flagged rows", res.AffectedVariables[0].Column))
	}
	return recs
}
