package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	domain "goprofile/domain/profiling"
	"goprofile/domain/table"
	"goprofile/internal"
	"goprofile/internal/classifier"
	apperrors "goprofile/internal/errors"
	"goprofile/internal/multivariate"
	estimators "goprofile/internal/profiling"
	"goprofile/ports"
)

// EngineDeps holds the collaborators injected into the engine
type EngineDeps struct {
	Memory   ports.MemoryMonitor
	Progress ports.ProgressObserver
	Logger   *internal.Logger
}

// progressEvery is the number of batches between streaming progress events
const progressEvery = 16

// Engine runs the single streaming pass: per-column estimators and the shared
// row reservoir while reading, then type classification, then multivariate
// analysis of the numeric columns.
type Engine struct {
	config       Config
	memory       ports.MemoryMonitor
	progress     ports.ProgressObserver
	logger       *internal.Logger
	classifier   *classifier.Classifier
	multivariate *multivariate.Engine
}

var _ ports.ProfilerPort = (*Engine)(nil)

// NewEngine validates the configuration and creates an engine
func NewEngine(config Config, deps EngineDeps) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if deps.Memory == nil {
		deps.Memory = lowPressure{}
	}
	if deps.Progress == nil {
		deps.Progress = noProgress{}
	}
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	return &Engine{
		config:       config,
		memory:       deps.Memory,
		progress:     deps.Progress,
		logger:       deps.Logger.With("Engine"),
		classifier:   classifier.New(config.Classifier),
		multivariate: multivariate.NewEngine(config.Multivariate, deps.Logger),
	}, nil
}

// Config returns the validated configuration
func (e *Engine) Config() Config { return e.config }

// AnalyzeStream consumes rows exactly once and returns the complete analysis
func (e *Engine) AnalyzeStream(ctx context.Context, source string, rows ports.RowSource) (*domain.AnalysisResult, error) {
	if rows == nil {
		return nil, apperrors.InvalidInput("row source is nil")
	}
	session, err := newSession(source, rows.Columns(), e.config)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Starting analysis %s of %s (%d columns)", session.RunID, source, len(session.Columns))

	if err := e.stream(ctx, session, rows); err != nil {
		e.enter(session, SessionStateError)
		return nil, err
	}
	return e.finish(ctx, session)
}

// AnalyzeMatrix analyzes an in-memory table. Moments are computed over row
// ranges in parallel and merged; quantiles and the reservoir see the rows in
// order, so the result matches AnalyzeStream over the same rows and seed.
func (e *Engine) AnalyzeMatrix(ctx context.Context, source string, columns []string, rows []table.Row) (*domain.AnalysisResult, error) {
	session, err := newSession(source, columns, e.config)
	if err != nil {
		return nil, err
	}

	if e.config.MaxRows > 0 && int64(len(rows)) > e.config.MaxRows {
		session.capped = true
		observed := float64(e.config.MaxRows) / float64(len(rows))
		session.observed = &observed
		rows = rows[:e.config.MaxRows]
	}
	e.logger.Info("Starting matrix analysis %s of %s (%d rows, %d columns)", session.RunID, source, len(rows), len(columns))

	merged, err := e.parallelMoments(ctx, len(columns), rows)
	if err != nil {
		return nil, err
	}
	for _, acc := range session.accumulators {
		acc.ExternalMoments()
	}

	if err := e.stream(ctx, session, &matrixSource{columns: columns, rows: rows}); err != nil {
		e.enter(session, SessionStateError)
		return nil, err
	}
	for j, acc := range session.accumulators {
		acc.SetMoments(merged[j])
	}
	return e.finish(ctx, session)
}

// parallelMoments splits rows into ColumnWorkers contiguous ranges, builds
// moments per range and merges them in range order
func (e *Engine) parallelMoments(ctx context.Context, width int, rows []table.Row) ([]*estimators.MomentEstimator, error) {
	chunks := e.config.ColumnWorkers
	if chunks > len(rows) {
		chunks = len(rows)
	}
	if chunks < 1 {
		chunks = 1
	}

	partial := make([][]*estimators.MomentEstimator, chunks)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < chunks; c++ {
		lo := c * len(rows) / chunks
		hi := (c + 1) * len(rows) / chunks
		c := c
		g.Go(func() error {
			ms := make([]*estimators.MomentEstimator, width)
			for j := range ms {
				ms[j] = estimators.NewMomentEstimator()
			}
			for i, row := range rows[lo:hi] {
				if i%e.config.BatchSize == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				for j := range ms {
					if cell := row.At(j); cell.Kind == table.CellNumber {
						ms[j].Update(cell.Num)
					}
				}
			}
			partial[c] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Cancelled(err)
	}

	merged := partial[0]
	for _, ms := range partial[1:] {
		for j := range merged {
			merged[j] = estimators.MergeMoments(merged[j], ms[j])
		}
	}
	return merged, nil
}

// stream reads the source batch by batch until EOF, the row cap or cancellation
func (e *Engine) stream(ctx context.Context, s *Session, rows ports.RowSource) error {
	e.enter(s, SessionStateStreaming)
	batch := make([]table.Row, 0, e.config.BatchSize)
	var next int64
	batches := 0

	for {
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled(err)
		}

		batch = batch[:0]
		eof := false
		for len(batch) < e.config.BatchSize {
			if e.config.MaxRows > 0 && next+int64(len(batch)) >= e.config.MaxRows {
				break
			}
			row, err := rows.Next(ctx)
			if err == io.EOF {
				eof = true
				break
			}
			if err != nil {
				return e.sourceError(ctx, s, next+int64(len(batch)), err)
			}
			batch = append(batch, row)
		}

		if len(batch) > 0 {
			e.sample(s, batch, next)
			if err := e.observe(ctx, s, batch); err != nil {
				return err
			}
			next += int64(len(batch))
			s.addRows(len(batch))
			e.logger.Trace("%s: %d rows read", s.Source, next)
			if batches++; batches%progressEvery == 0 {
				e.report(s, streamFraction(rows, next))
			}
		}

		if eof {
			return nil
		}
		if e.config.MaxRows > 0 && next >= e.config.MaxRows {
			return e.checkCap(ctx, s, rows)
		}
		e.applyPressure(s)
	}
}

// sourceError classifies a failed read; read is the number of rows returned
// before the failure
func (e *Engine) sourceError(ctx context.Context, s *Session, read int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.Cancelled(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Cancelled(err)
	}
	e.logger.Error("Row source %s failed after %d rows: %v", s.Source, read, err)
	return apperrors.SourceError(s.Source, err)
}

// checkCap looks one row past the cap to tell a truncated source from one
// that ends exactly at the cap
func (e *Engine) checkCap(ctx context.Context, s *Session, rows ports.RowSource) error {
	_, err := rows.Next(ctx)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return e.sourceError(ctx, s, s.RowsRead(), err)
	}

	s.capped = true
	read := s.RowsRead()
	var observed float64
	switch {
	case rowTotal(rows) > 0:
		observed = float64(read) / float64(rowTotal(rows))
	case progressFraction(rows) > 0:
		observed = progressFraction(rows)
	default:
		s.warn(fmt.Sprintf("row cap of %d reached; source size unknown so the observed fraction is not reported", e.config.MaxRows))
		e.logger.Info("Row cap of %d reached for %s (source size unknown)", e.config.MaxRows, s.Source)
		return nil
	}
	s.observed = &observed
	e.logger.Info("Row cap of %d reached for %s (observed fraction %.4f)", e.config.MaxRows, s.Source, observed)
	return nil
}

func rowTotal(rows ports.RowSource) int64 {
	if counter, ok := rows.(ports.RowCounter); ok {
		if total, known := counter.TotalRows(); known {
			return total
		}
	}
	return 0
}

func progressFraction(rows ports.RowSource) float64 {
	if reporter, ok := rows.(ports.ProgressReporter); ok {
		consumed, total := reporter.Progress()
		if total > 0 && consumed > 0 {
			return min(float64(consumed)/float64(total), 1)
		}
	}
	return 0
}

func streamFraction(rows ports.RowSource, read int64) float64 {
	if total := rowTotal(rows); total > 0 {
		return min(float64(read)/float64(total), 1)
	}
	return progressFraction(rows)
}

// enter moves the session to state and publishes the transition
func (e *Engine) enter(s *Session, state SessionState) {
	s.setState(state)
	fraction := 0.0
	if state == SessionStateComplete {
		fraction = 1
	}
	e.report(s, fraction)
}

func (e *Engine) report(s *Session, fraction float64) {
	e.progress.OnProgress(ports.ProgressEvent{
		RunID:     s.RunID.String(),
		Source:    s.Source,
		Stage:     string(s.State()),
		RowsRead:  s.RowsRead(),
		Fraction:  fraction,
		Timestamp: time.Now(),
	})
}

// sample makes the single reservoir decision per row, before any column
// worker sees the batch
func (e *Engine) sample(s *Session, batch []table.Row, first int64) {
	stride := int64(s.stride)
	for i, row := range batch {
		index := first + int64(i)
		if index%stride == 0 {
			s.sampler.Offer(index, row)
		}
	}
}

// observe feeds the batch to the column accumulators. With several column
// groups each worker owns a disjoint, contiguous range of accumulators.
func (e *Engine) observe(ctx context.Context, s *Session, batch []table.Row) error {
	if len(s.groups) <= 1 {
		for _, row := range batch {
			for j, acc := range s.accumulators {
				acc.Observe(row.At(j))
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range s.groups {
		group := group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			owned := s.accumulators[group.lo:group.hi]
			for _, row := range batch {
				for k, acc := range owned {
					acc.Observe(row.At(group.lo + k))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Cancelled(err)
	}
	return nil
}

// finish classifies every column from the retained sample, then runs the
// multivariate analysis over the numeric ones
func (e *Engine) finish(ctx context.Context, s *Session) (*domain.AnalysisResult, error) {
	e.enter(s, SessionStateClassifying)
	rowsRead := s.RowsRead()
	profiles := make([]domain.ColumnProfile, len(s.accumulators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.ColumnWorkers)
	for j, acc := range s.accumulators {
		j, acc := j, acc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sample := s.sampler.ColumnSample(j, rowsRead)
			nulls, texts, numerics := acc.Counts()
			profiles[j] = domain.ColumnProfile{
				Name:         acc.Name,
				Index:        j,
				Summary:      acc.Summary(),
				Quantiles:    acc.Quantiles(),
				Type:         e.classifier.Classify(acc.Name, sample),
				Sample:       sample,
				NullCount:    nulls,
				TextCount:    texts,
				NumericCount: numerics,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.enter(s, SessionStateError)
		return nil, apperrors.Cancelled(err)
	}
	if err := ctx.Err(); err != nil {
		e.enter(s, SessionStateError)
		return nil, apperrors.Cancelled(err)
	}

	e.enter(s, SessionStateAnalyzing)
	input := multivariate.Input{}
	indices, _ := s.sampler.Rows()
	input.RowIndices = indices
	for _, p := range profiles {
		if !p.Type.DataType.IsNumeric() {
			continue
		}
		if p.Summary.Count == 0 {
			s.warn(fmt.Sprintf("column %q is numeric by format but holds no parseable numbers", p.Name))
			continue
		}
		input.Columns = append(input.Columns, multivariate.Column{
			Name:   p.Name,
			Values: p.Sample.Values,
			Mean:   p.Summary.Mean,
			StdDev: p.Summary.StdDev,
		})
	}
	pca, outliers := e.multivariate.Analyze(input)

	if s.capped {
		s.warn(fmt.Sprintf("row cap of %d reached; statistics describe the first %d rows", e.config.MaxRows, rowsRead))
	}
	observed := s.observed
	if !s.capped {
		full := 1.0
		observed = &full
	}

	result := &domain.AnalysisResult{
		RunID:             s.RunID,
		Source:            s.Source,
		Columns:           profiles,
		RowsRead:          rowsRead,
		RowsRetained:      s.sampler.Len(),
		Sampled:           s.capped,
		ObservedFraction:  observed,
		SamplingStride:    s.stride,
		ReservoirCapacity: s.sampler.Capacity(),
		PCA:               pca,
		Outliers:          outliers,
		Warnings:          s.warnings,
		StartedAt:         s.StartedAt,
		Duration:          time.Since(s.StartedAt),
	}
	e.enter(s, SessionStateComplete)

	e.logger.Info("Completed analysis %s of %s: %d rows read, %d retained, %d numeric columns, in %v",
		s.RunID, s.Source, rowsRead, result.RowsRetained, len(input.Columns), result.Duration)
	return result, nil
}

// matrixSource replays an in-memory table as a row source
type matrixSource struct {
	columns []string
	rows    []table.Row
	next    int
}

func (m *matrixSource) Columns() []string { return m.columns }

func (m *matrixSource) Next(ctx context.Context) (table.Row, error) {
	if m.next >= len(m.rows) {
		return nil, io.EOF
	}
	row := m.rows[m.next]
	m.next++
	return row, nil
}

func (m *matrixSource) TotalRows() (int64, bool) { return int64(len(m.rows)), true }

type noProgress struct{}

func (noProgress) OnProgress(ports.ProgressEvent) {}
