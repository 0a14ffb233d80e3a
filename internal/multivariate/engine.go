package multivariate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"goprofile/domain/profiling"
	"goprofile/domain/table"
	"goprofile/internal"
)

// Config holds the multivariate thresholds
type Config struct {
	MinColumns int // numeric columns required after zero-variance exclusion
	MinRows    int // complete rows required

	RedundancyThreshold float64   // |r| flagged as near-perfect
	PerfectThreshold    float64   // |r| flagged as perfect
	SingularEigenvalue  float64   // smallest eigenvalue below this is singular
	IllConditionedRatio float64   // λmin/λmax below this is ill-conditioned
	VarianceThresholds  []float64 // cumulative variance targets
	DominantFeatures    int       // loadings reported per component
	JacobiTolerance     float64
	JacobiMaxSweeps     int

	MaxConditionNumber   float64   // covariance condition number above which outliers are skipped
	SeverityQuantiles    [3]float64 // χ² quantiles for mild, moderate, extreme
	ExtremeFractionAlert float64   // extreme fraction above which a review is recommended
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MinColumns:           2,
		MinRows:              5,
		RedundancyThreshold:  0.95,
		PerfectThreshold:     0.999,
		SingularEigenvalue:   1e-6,
		IllConditionedRatio:  1e-4,
		VarianceThresholds:   []float64{0.80, 0.90, 0.95},
		DominantFeatures:     3,
		JacobiTolerance:      1e-22,
		JacobiMaxSweeps:      100,
		MaxConditionNumber:   1e12,
		SeverityQuantiles:    [3]float64{0.90, 0.975, 0.999},
		ExtremeFractionAlert: 0.05,
	}
}

// Column is one numeric column's retained sample, aligned with every other
// column of the same Input, plus the moments of the full stream.
type Column struct {
	Name   string
	Values []table.Cell
	Mean   float64
	StdDev float64
}

// Input is the row-aligned numeric sample handed over after the pass
type Input struct {
	RowIndices []int64
	Columns    []Column
}

// Engine runs PCA and Mahalanobis outlier detection over an Input
type Engine struct {
	config Config
	logger *internal.Logger
}

// NewEngine creates a multivariate engine
func NewEngine(config Config, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{config: config, logger: logger.With("Multivariate")}
}

// prepared is the standardized complete-row matrix shared by both analyses
type prepared struct {
	names      []string
	excluded   []string
	warnings   []string
	rowIndices []int64
	z          *mat.Dense // rows x columns, standardized with stream moments

	applicable bool
	reason     string
}

// prepare applies the shared gate: at least MinColumns numeric columns with
// non-zero variance and at least MinRows rows where every kept column is a
// finite number.
func (e *Engine) prepare(in Input) *prepared {
	p := &prepared{}

	type kept struct {
		col   Column
		index int
	}
	var cols []kept
	for i, c := range in.Columns {
		if c.StdDev == 0 || math.IsNaN(c.StdDev) || math.IsInf(c.StdDev, 0) {
			p.excluded = append(p.excluded, c.Name)
			p.warnings = append(p.warnings, fmt.Sprintf("column %q has zero variance and was excluded", c.Name))
			continue
		}
		cols = append(cols, kept{col: c, index: i})
	}

	for {
		if len(cols) < e.config.MinColumns {
			p.reason = fmt.Sprintf("requires at least %d numeric columns with non-zero variance, found %d", e.config.MinColumns, len(cols))
			return p
		}

		var complete []int
		for r := range in.RowIndices {
			ok := true
			for _, k := range cols {
				if r >= len(k.col.Values) || !k.col.Values[r].IsFiniteNumber() {
					ok = false
					break
				}
			}
			if ok {
				complete = append(complete, r)
			}
		}
		if len(complete) < e.config.MinRows {
			p.reason = fmt.Sprintf("requires at least %d complete rows, found %d", e.config.MinRows, len(complete))
			return p
		}

		// a column can still be constant within the retained complete rows
		constant := -1
		for ci, k := range cols {
			first := k.col.Values[complete[0]].Num
			same := true
			for _, r := range complete[1:] {
				if k.col.Values[r].Num != first {
					same = false
					break
				}
			}
			if same {
				constant = ci
				break
			}
		}
		if constant >= 0 {
			name := cols[constant].col.Name
			p.excluded = append(p.excluded, name)
			p.warnings = append(p.warnings, fmt.Sprintf("column %q is constant in the retained sample and was excluded", name))
			cols = append(cols[:constant], cols[constant+1:]...)
			continue
		}

		p.z = mat.NewDense(len(complete), len(cols), nil)
		p.rowIndices = make([]int64, len(complete))
		for i, r := range complete {
			p.rowIndices[i] = in.RowIndices[r]
			for j, k := range cols {
				p.z.Set(i, j, (k.col.Values[r].Num-k.col.Mean)/k.col.StdDev)
			}
		}
		p.names = make([]string, len(cols))
		for j, k := range cols {
			p.names[j] = k.col.Name
		}
		p.applicable = true
		return p
	}
}

// Analyze runs PCA and then outlier detection on the same prepared sample
func (e *Engine) Analyze(in Input) (*profiling.PCAResult, *profiling.OutlierResult) {
	p := e.prepare(in)
	if !p.applicable {
		e.logger.Debug("multivariate analysis not applicable: %s", p.reason)
	}
	return e.pca(p), e.outliers(p)
}

// PCA runs principal component analysis alone
func (e *Engine) PCA(in Input) *profiling.PCAResult {
	return e.pca(e.prepare(in))
}

// Outliers runs Mahalanobis outlier detection alone
func (e *Engine) Outliers(in Input) *profiling.OutlierResult {
	return e.outliers(e.prepare(in))
}
