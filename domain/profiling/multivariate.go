package profiling

import "sort"

const (
	MethodPCA         = "principal-component-analysis"
	MethodMahalanobis = "mahalanobis-distance"
)

// PCAResult describes the principal component structure of the numeric columns
type PCAResult struct {
	Method              string               `json:"method"`
	IsApplicable        bool                 `json:"is_applicable"`
	ApplicabilityReason string               `json:"applicability_reason,omitempty"`
	Columns             []string             `json:"columns,omitempty"`
	ExcludedColumns     []string             `json:"excluded_columns,omitempty"`
	SampleSize          int                  `json:"sample_size"`
	Components          []PrincipalComponent `json:"components,omitempty"`
	VarianceThresholds  []VarianceThreshold  `json:"variance_thresholds,omitempty"`
	RedundantPairs      []RedundantPair      `json:"redundant_pairs,omitempty"`
	Warnings            []string             `json:"warnings,omitempty"`
}

// PrincipalComponent is one eigenpair of the correlation matrix
type PrincipalComponent struct {
	Index                  int                `json:"index"` // 1-based
	Eigenvalue             float64            `json:"eigenvalue"`
	ExplainedVarianceRatio float64            `json:"explained_variance_ratio"`
	CumulativeRatio        float64            `json:"cumulative_ratio"`
	Loadings               map[string]float64 `json:"loadings"`
	DominantFeatures       []string           `json:"dominant_features"`
}

// VarianceThreshold is the smallest number of components reaching a cumulative ratio
type VarianceThreshold struct {
	Threshold  float64 `json:"threshold"`
	Components int     `json:"components"`
}

// RedundantPair flags near-collinear columns
type RedundantPair struct {
	ColumnA     string  `json:"column_a"`
	ColumnB     string  `json:"column_b"`
	Correlation float64 `json:"correlation"`
	Level       string  `json:"level"` // "perfect" or "near-perfect"
}

// ComponentsFor returns the component count needed for the given cumulative threshold
func (r *PCAResult) ComponentsFor(threshold float64) (int, bool) {
	for _, vt := range r.VarianceThresholds {
		if vt.Threshold == threshold {
			return vt.Components, true
		}
	}
	return 0, false
}

// Severity buckets for multivariate outliers
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeverityExtreme  Severity = "extreme"
)

// OutlierResult reports Mahalanobis-distance outliers in the aligned sample
type OutlierResult struct {
	Method               string               `json:"method"`
	IsApplicable         bool                 `json:"is_applicable"`
	ApplicabilityReason  string               `json:"applicability_reason,omitempty"`
	Columns              []string             `json:"columns,omitempty"`
	SampleSize           int                  `json:"sample_size"`
	DegreesOfFreedom     int                  `json:"degrees_of_freedom"`
	CriticalValues       map[Severity]float64 `json:"critical_values,omitempty"`
	Rows                 []RowOutlier         `json:"rows,omitempty"` // every evaluated row, sample order
	SeverityDistribution map[Severity]int     `json:"severity_distribution,omitempty"`
	AffectedVariables    []VariableImpact     `json:"affected_variables,omitempty"`
	Recommendations      []string             `json:"recommendations,omitempty"`
}

// RowOutlier is the distance and severity of one sampled row
type RowOutlier struct {
	RowIndex                   int64              `json:"row_index"`
	MahalanobisDistanceSquared float64            `json:"mahalanobis_distance_squared"`
	Severity                   Severity           `json:"severity"`
	Contributions              map[string]float64 `json:"contributions,omitempty"`
}

// VariableImpact ranks how much a column drives flagged rows
type VariableImpact struct {
	Column       string  `json:"column"`
	Contribution float64 `json:"contribution"`
	FlaggedRows  int     `json:"flagged_rows"`
}

// Flagged returns rows with a severity above none, most distant first
func (r *OutlierResult) Flagged() []RowOutlier {
	var out []RowOutlier
	for _, row := range r.Rows {
		if row.Severity != SeverityNone {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MahalanobisDistanceSquared > out[j].MahalanobisDistanceSquared
	})
	return out
}

// Row returns the outlier entry for a source row index
func (r *OutlierResult) Row(rowIndex int64) (RowOutlier, bool) {
	for _, row := range r.Rows {
		if row.RowIndex == rowIndex {
			return row, true
		}
	}
	return RowOutlier{}, false
}
