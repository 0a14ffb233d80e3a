package profiling

import (
	"time"

	"goprofile/domain/core"
	"goprofile/domain/table"
)

// StatisticalSummary is an immutable snapshot of a column's running moments
type StatisticalSummary struct {
	Count    int64   `json:"count"`
	Skipped  int64   `json:"skipped"` // non-finite numeric inputs
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"` // sample variance (n-1); 0 when count <= 1
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// MarkerState exposes the five P² markers
type MarkerState struct {
	Positions        [5]int64   `json:"positions"`
	DesiredPositions [5]float64 `json:"desired_positions"`
	Heights          [5]float64 `json:"heights"`
}

// QuantileEstimate is a snapshot of one streaming quantile estimator
type QuantileEstimate struct {
	TargetPercentile float64      `json:"target_percentile"` // in (0,1)
	EstimatedValue   float64      `json:"estimated_value"`
	Count            int64        `json:"count"`
	Markers          *MarkerState `json:"markers,omitempty"` // nil until five observations
}

// ColumnSample is the retained, row-aligned sample of one column
type ColumnSample struct {
	Name          string       `json:"name"`
	Index         int          `json:"index"`
	Values        []table.Cell `json:"-"`
	RowIndices    []int64      `json:"-"`
	CountSeen     int64        `json:"count_seen"`
	CountRetained int          `json:"count_retained"`
}

// DataType is the classified storage/shape type of a column
type DataType string

const (
	DataTypeNumericInteger DataType = "numeric-integer"
	DataTypeNumericFloat   DataType = "numeric-float"
	DataTypeBoolean        DataType = "boolean"
	DataTypeDateTime       DataType = "date-time"
	DataTypeCategorical    DataType = "categorical"
	DataTypeTextAddress    DataType = "text-address"
	DataTypeTextGeneral    DataType = "text-general"
)

// IsNumeric reports whether the type takes part in multivariate analysis
func (t DataType) IsNumeric() bool {
	return t == DataTypeNumericInteger || t == DataTypeNumericFloat
}

// SemanticType is the business meaning inferred for a column
type SemanticType string

const (
	SemanticIdentifier         SemanticType = "identifier"
	SemanticAge                SemanticType = "age"
	SemanticCurrency           SemanticType = "currency"
	SemanticPercentage         SemanticType = "percentage"
	SemanticRating             SemanticType = "rating"
	SemanticStatus             SemanticType = "status"
	SemanticDemographic        SemanticType = "demographic"
	SemanticOrganizationalUnit SemanticType = "organizational-unit"
	SemanticUnknown            SemanticType = "unknown"
)

// TypeDetectionResult is produced once per column per run
type TypeDetectionResult struct {
	DataType     DataType     `json:"data_type"`
	SemanticType SemanticType `json:"semantic_type"`
	Confidence   float64      `json:"confidence"` // 0-1
	Reasons      []string     `json:"reasons"`
}

// ColumnProfile gathers everything computed for a single column
type ColumnProfile struct {
	Name         string              `json:"name"`
	Index        int                 `json:"index"`
	Summary      StatisticalSummary  `json:"summary"`
	Quantiles    []QuantileEstimate  `json:"quantiles"`
	Type         TypeDetectionResult `json:"type"`
	Sample       ColumnSample        `json:"sample"`
	NullCount    int64               `json:"null_count"`
	TextCount    int64               `json:"text_count"`
	NumericCount int64               `json:"numeric_count"`
}

// Quantile returns the estimate for target p, if configured
func (cp *ColumnProfile) Quantile(p float64) (QuantileEstimate, bool) {
	for _, q := range cp.Quantiles {
		if q.TargetPercentile == p {
			return q, true
		}
	}
	return QuantileEstimate{}, false
}

// AnalysisResult is the complete outcome of one analysis run
type AnalysisResult struct {
	RunID             core.RunID      `json:"run_id"`
	Source            string          `json:"source"`
	Columns           []ColumnProfile `json:"columns"`
	RowsRead          int64           `json:"rows_read"`
	RowsRetained      int             `json:"rows_retained"`
	Sampled           bool            `json:"sampled"`
	ObservedFraction  *float64        `json:"observed_fraction,omitempty"` // nil when capped and the source size is unknown
	SamplingStride    int             `json:"sampling_stride"`
	ReservoirCapacity int             `json:"reservoir_capacity"`
	PCA               *PCAResult      `json:"pca"`
	Outliers          *OutlierResult  `json:"outliers"`
	Warnings          []string        `json:"warnings,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	Duration          time.Duration   `json:"duration"`
}

// Column finds a column profile by name
func (r *AnalysisResult) Column(name string) (*ColumnProfile, bool) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i], true
		}
	}
	return nil, false
}

// NumericColumns returns the names of columns classified as numeric, in column order
func (r *AnalysisResult) NumericColumns() []string {
	var names []string
	for _, c := range r.Columns {
		if c.Type.DataType.IsNumeric() {
			names = append(names, c.Name)
		}
	}
	return names
}
