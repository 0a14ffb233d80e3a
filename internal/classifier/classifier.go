package classifier

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/profiling"
	"goprofile/domain/table"
)

// Config defines the classification thresholds
type Config struct {
	SampleSize           int     `json:"sample_size"`           // values inspected per column
	NumericThreshold     float64 `json:"numeric_threshold"`     // % of values that must parse as numbers
	BooleanThreshold     float64 `json:"boolean_threshold"`     // % of values that must parse as booleans
	DateThreshold        float64 `json:"date_threshold"`        // % of values that must parse as dates
	SpecializedThreshold float64 `json:"specialized_threshold"` // % of values matching one specialized pattern
	MaxCategories        int     `json:"max_categories"`        // cardinality bound for categorical columns
	MaxDistinctRatio     float64 `json:"max_distinct_ratio"`    // distinct/valid bound for categorical columns
	LexiconThreshold     float64 `json:"lexicon_threshold"`     // % of values found in a known vocabulary
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SampleSize:           100,
		NumericThreshold:     0.8,
		BooleanThreshold:     0.9,
		DateThreshold:        0.8,
		SpecializedThreshold: 0.8,
		MaxCategories:        20,
		MaxDistinctRatio:     0.5,
		LexiconThreshold:     0.9,
	}
}

// Classifier infers data and semantic types from a column name and its
// retained sample. It is stateless and safe for concurrent use.
type Classifier struct {
	config Config
}

// New creates a classifier, filling unset fields from DefaultConfig
func New(config Config) *Classifier {
	d := DefaultConfig()
	if config.SampleSize <= 0 {
		config.SampleSize = d.SampleSize
	}
	if config.NumericThreshold <= 0 {
		config.NumericThreshold = d.NumericThreshold
	}
	if config.BooleanThreshold <= 0 {
		config.BooleanThreshold = d.BooleanThreshold
	}
	if config.DateThreshold <= 0 {
		config.DateThreshold = d.DateThreshold
	}
	if config.SpecializedThreshold <= 0 {
		config.SpecializedThreshold = d.SpecializedThreshold
	}
	if config.MaxCategories <= 0 {
		config.MaxCategories = d.MaxCategories
	}
	if config.MaxDistinctRatio <= 0 {
		config.MaxDistinctRatio = d.MaxDistinctRatio
	}
	if config.LexiconThreshold <= 0 {
		config.LexiconThreshold = d.LexiconThreshold
	}
	return &Classifier{config: config}
}

// Classify runs the pattern tests over a retained column sample
func (c *Classifier) Classify(name string, sample profiling.ColumnSample) profiling.TypeDetectionResult {
	return c.classifyCells(name, sample.Values)
}

// ClassifyValues classifies raw strings, coercing them the way sources do
func (c *Classifier) ClassifyValues(name string, raw []string) profiling.TypeDetectionResult {
	cells := make([]table.Cell, len(raw))
	for i, r := range raw {
		cells[i] = coercer.ParseCell(r)
	}
	return c.classifyCells(name, cells)
}

type specialKind int

const (
	specialNone specialKind = iota
	specialEmail
	specialURL
	specialAddress
	specialCurrency
	specialPercentage
)

var specialNames = map[specialKind]string{
	specialEmail:      "email",
	specialURL:        "URL",
	specialAddress:    "street address",
	specialCurrency:   "currency",
	specialPercentage: "percentage",
}

// evidence holds the match ratios of every independent test
type evidence struct {
	n int

	numericCount int
	integerCount int
	numbers      []float64

	booleanCount int
	dateCount    int

	distinct        int
	repeatedCount   int
	lexicon         profiling.SemanticType
	lexiconRatio    float64
	categoricalOK   bool
	categoricalRate float64
	categoricalWhy  string

	specialKind  specialKind
	specialCount int
}

func (e *evidence) ratio(count int) float64 {
	if e.n == 0 {
		return 0
	}
	return float64(count) / float64(e.n)
}

func (c *Classifier) classifyCells(name string, cells []table.Cell) profiling.TypeDetectionResult {
	if len(cells) > c.config.SampleSize {
		cells = cells[:c.config.SampleSize]
	}

	valid := make([]table.Cell, 0, len(cells))
	for _, cell := range cells {
		if !cell.IsBlank() {
			valid = append(valid, cell)
		}
	}
	if len(valid) == 0 {
		return profiling.TypeDetectionResult{
			DataType:     profiling.DataTypeTextGeneral,
			SemanticType: profiling.SemanticUnknown,
			Confidence:   0,
			Reasons:      []string{"No valid values found"},
		}
	}

	hint := hintFromName(name)
	ev := c.gather(valid, hint)

	var reasons []string
	reasons = append(reasons,
		fmt.Sprintf("numeric: %d/%d values parse as numbers (%.0f%%)", ev.numericCount, ev.n, 100*ev.ratio(ev.numericCount)),
		fmt.Sprintf("boolean: %d/%d values are boolean-like (%.0f%%)", ev.booleanCount, ev.n, 100*ev.ratio(ev.booleanCount)),
		fmt.Sprintf("date: %d/%d values match a date pattern (%.0f%%)", ev.dateCount, ev.n, 100*ev.ratio(ev.dateCount)),
		fmt.Sprintf("categorical: %d distinct values, %s", ev.distinct, ev.categoricalWhy),
	)
	if ev.specialKind == specialNone {
		reasons = append(reasons, "specialized: no email, URL, address, currency or percentage values")
	} else {
		reasons = append(reasons, fmt.Sprintf("specialized: %d/%d values look like %s (%.0f%%)",
			ev.specialCount, ev.n, specialNames[ev.specialKind], 100*ev.ratio(ev.specialCount)))
	}

	dataType, semantic, matchRatio, decision := c.decide(ev)

	fromLexicon := false
	if semantic == profiling.SemanticUnknown {
		if ev.lexicon != profiling.SemanticUnknown && ev.lexiconRatio >= c.config.LexiconThreshold &&
			(dataType == profiling.DataTypeCategorical || dataType == profiling.DataTypeBoolean) {
			semantic = ev.lexicon
			fromLexicon = true
		} else if hint.semantic != profiling.SemanticUnknown && compatible(hint.semantic, dataType, ev.numbers) {
			semantic = hint.semantic
		}
	}

	support := 0.5
	switch {
	case hint.semantic != profiling.SemanticUnknown || hint.date:
		agrees := (hint.semantic != profiling.SemanticUnknown && hint.semantic == semantic) ||
			(hint.date && dataType == profiling.DataTypeDateTime)
		if agrees {
			support = 1
			reasons = append(reasons, fmt.Sprintf("name: %q supports %s", hint.keyword, describeHint(hint, semantic, dataType)))
		} else {
			support = 0
			reasons = append(reasons, fmt.Sprintf("name: %q hint not supported by the values", hint.keyword))
		}
	case fromLexicon:
		support = ev.lexiconRatio
		reasons = append(reasons, fmt.Sprintf("name: no keyword hint; values match the %s vocabulary", semantic))
	default:
		reasons = append(reasons, "name: no keyword hint")
	}

	reasons = append(reasons, decision)

	confidence := 0.8*matchRatio + 0.2*support
	confidence = math.Max(0, math.Min(1, confidence))

	return profiling.TypeDetectionResult{
		DataType:     dataType,
		SemanticType: semantic,
		Confidence:   confidence,
		Reasons:      reasons,
	}
}

// gather runs every pattern test independently
func (c *Classifier) gather(valid []table.Cell, hint nameHint) *evidence {
	ev := &evidence{n: len(valid), lexicon: profiling.SemanticUnknown}

	counts := make(map[string]int)
	normalized := make([]string, 0, len(valid))
	specials := make(map[specialKind]int)
	var sawTrue, sawFalse, wordBoolean bool

	for _, cell := range valid {
		s := strings.TrimSpace(cell.String())

		if v, ok := numericValue(cell, s); ok {
			ev.numericCount++
			ev.numbers = append(ev.numbers, v)
			if v == math.Trunc(v) && !strings.ContainsAny(s, ".eE") {
				ev.integerCount++
			}
		}

		if b, ok := coercer.ParseBoolean(s); ok {
			ev.booleanCount++
			if b {
				sawTrue = true
			} else {
				sawFalse = true
			}
			if s != "0" && s != "1" {
				wordBoolean = true
			}
		}

		if isDate(s, hint.date) {
			ev.dateCount++
		}

		switch {
		case isEmail(s):
			specials[specialEmail]++
		case isURL(s):
			specials[specialURL]++
		case isStreetAddress(s):
			specials[specialAddress]++
		case isCurrency(s):
			specials[specialCurrency]++
		case isPercentage(s):
			specials[specialPercentage]++
		}

		norm := coercer.NormalizeString(s)
		normalized = append(normalized, norm)
		counts[norm]++
	}

	// a column of 0/1 digits is only boolean when both values occur
	if !wordBoolean && !(sawTrue && sawFalse) {
		ev.booleanCount = 0
	}

	for k := specialEmail; k <= specialPercentage; k++ {
		if specials[k] > ev.specialCount {
			ev.specialKind, ev.specialCount = k, specials[k]
		}
	}

	ev.distinct = len(counts)
	for _, n := range counts {
		if n > 1 {
			ev.repeatedCount += n
		}
	}
	ev.lexicon, ev.lexiconRatio = lexiconMatch(normalized)

	distinctRatio := float64(ev.distinct) / float64(ev.n)
	lowCardinality := ev.distinct <= c.config.MaxCategories && distinctRatio <= c.config.MaxDistinctRatio
	knownVocabulary := ev.distinct <= c.config.MaxCategories && ev.lexiconRatio >= c.config.LexiconThreshold

	ev.categoricalOK = lowCardinality || knownVocabulary
	switch {
	case knownVocabulary:
		ev.categoricalRate = math.Max(ev.lexiconRatio, ev.ratio(ev.repeatedCount))
		ev.categoricalWhy = fmt.Sprintf("%.0f%% in the %s vocabulary", 100*ev.lexiconRatio, ev.lexicon)
	case lowCardinality:
		ev.categoricalRate = ev.ratio(ev.repeatedCount)
		ev.categoricalWhy = fmt.Sprintf("distinct ratio %.2f within bounds", distinctRatio)
	default:
		ev.categoricalWhy = fmt.Sprintf("distinct ratio %.2f too high for a category", distinctRatio)
	}
	return ev
}

// decide applies the precedence specialized > boolean > date > numeric > categorical > text
func (c *Classifier) decide(ev *evidence) (profiling.DataType, profiling.SemanticType, float64, string) {
	specialRatio := ev.ratio(ev.specialCount)
	if ev.specialKind != specialNone && specialRatio >= c.config.SpecializedThreshold {
		why := fmt.Sprintf("selected %s values", specialNames[ev.specialKind])
		switch ev.specialKind {
		case specialEmail:
			return profiling.DataTypeTextAddress, profiling.SemanticIdentifier, specialRatio, why
		case specialCurrency:
			return profiling.DataTypeNumericFloat, profiling.SemanticCurrency, specialRatio, why
		case specialPercentage:
			return profiling.DataTypeNumericFloat, profiling.SemanticPercentage, specialRatio, why
		default:
			return profiling.DataTypeTextAddress, profiling.SemanticUnknown, specialRatio, why
		}
	}

	if r := ev.ratio(ev.booleanCount); r >= c.config.BooleanThreshold {
		return profiling.DataTypeBoolean, profiling.SemanticUnknown, r, "selected boolean values"
	}
	if r := ev.ratio(ev.dateCount); r >= c.config.DateThreshold {
		return profiling.DataTypeDateTime, profiling.SemanticUnknown, r, "selected date values"
	}
	if r := ev.ratio(ev.numericCount); r >= c.config.NumericThreshold {
		if ev.integerCount == ev.numericCount {
			return profiling.DataTypeNumericInteger, profiling.SemanticUnknown, r, "selected integer values"
		}
		return profiling.DataTypeNumericFloat, profiling.SemanticUnknown, r, "selected floating point values"
	}
	if ev.categoricalOK {
		return profiling.DataTypeCategorical, profiling.SemanticUnknown, ev.categoricalRate, "selected categorical values"
	}

	best := math.Max(math.Max(ev.ratio(ev.numericCount), ev.ratio(ev.booleanCount)),
		math.Max(ev.ratio(ev.dateCount), specialRatio))
	return profiling.DataTypeTextGeneral, profiling.SemanticUnknown, 0.5 * (1 - best),
		"no test accepted, falling back to general text"
}

// numericValue reads a finite number from a numeric cell or a plain numeric lexeme
func numericValue(cell table.Cell, s string) (float64, bool) {
	if cell.Kind == table.CellNumber {
		return cell.Num, cell.IsFiniteNumber()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// compatible checks a name-derived semantic type against the value evidence
func compatible(semantic profiling.SemanticType, dataType profiling.DataType, numbers []float64) bool {
	switch semantic {
	case profiling.SemanticIdentifier:
		return dataType == profiling.DataTypeNumericInteger || dataType == profiling.DataTypeTextGeneral ||
			dataType == profiling.DataTypeCategorical || dataType == profiling.DataTypeTextAddress
	case profiling.SemanticAge:
		return dataType.IsNumeric() && within(numbers, 0, 150)
	case profiling.SemanticCurrency, profiling.SemanticPercentage:
		return dataType.IsNumeric()
	case profiling.SemanticRating:
		return (dataType.IsNumeric() && within(numbers, 0, 10)) || dataType == profiling.DataTypeCategorical
	case profiling.SemanticStatus, profiling.SemanticDemographic:
		return dataType == profiling.DataTypeCategorical || dataType == profiling.DataTypeBoolean
	case profiling.SemanticOrganizationalUnit:
		return dataType == profiling.DataTypeCategorical || dataType == profiling.DataTypeTextGeneral
	}
	return false
}

// within reports whether every value lies in [lo, hi]
func within(numbers []float64, lo, hi float64) bool {
	minV, err := stats.Min(numbers)
	if err != nil {
		return false
	}
	maxV, err := stats.Max(numbers)
	if err != nil {
		return false
	}
	return minV >= lo && maxV <= hi
}

func describeHint(hint nameHint, semantic profiling.SemanticType, dataType profiling.DataType) string {
	if hint.semantic != profiling.SemanticUnknown && hint.semantic == semantic {
		return string(semantic)
	}
	return string(dataType)
}
