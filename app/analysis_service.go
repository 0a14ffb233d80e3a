package app

import (
	"context"
	"fmt"
	"time"

	"goprofile/domain/profiling"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// SourceOpener turns a path into a row source
type SourceOpener func(path string) (ports.ClosableRowSource, error)

// AnalysisService runs the streaming profiler over files, several at a time
type AnalysisService struct {
	profiler ports.ProfilerPort
	executor ports.TaskExecutor
	guard    ports.GuardedExecutor
	open     SourceOpener
	logger   *internal.Logger
}

// FileResult is the outcome of one file of a multi-file request
type FileResult struct {
	Path   string                    `json:"path"`
	Result *profiling.AnalysisResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
	Code   string                    `json:"code,omitempty"`
	Err    error                     `json:"-"`
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(profiler ports.ProfilerPort, executor ports.TaskExecutor, guard ports.GuardedExecutor, open SourceOpener, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisService{
		profiler: profiler,
		executor: executor,
		guard:    guard,
		open:     open,
		logger:   logger.With("AnalysisService"),
	}
}

// AnalyzeFile opens path and analyzes it in one pass
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string) (*profiling.AnalysisResult, error) {
	rows, err := s.open(path)
	if err != nil {
		s.logger.Warn("Cannot open %s: %v", path, err)
		return nil, err
	}
	defer rows.Close()

	return s.AnalyzeSource(ctx, path, rows)
}

// AnalyzeSource analyzes an already open row source under the guard
func (s *AnalysisService) AnalyzeSource(ctx context.Context, name string, rows ports.RowSource) (*profiling.AnalysisResult, error) {
	var result *profiling.AnalysisResult
	err := s.guard.Execute(ctx, fmt.Sprintf("analyze %s", name), func(ctx context.Context) error {
		res, err := s.profiler.AnalyzeStream(ctx, name, rows)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AnalyzeFiles analyzes every path through the executor. Results keep the
// input order; a failing file is reported in its FileResult without stopping
// the others. The returned error is set only when ctx ends first.
func (s *AnalysisService) AnalyzeFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	start := time.Now()
	futures := make([]ports.Future, len(paths))
	for i, path := range paths {
		path := path
		futures[i] = s.executor.Submit(ctx, func(ctx context.Context) (interface{}, error) {
			return s.AnalyzeFile(ctx, path)
		})
	}

	results := make([]FileResult, len(paths))
	failed := 0
	for i, f := range futures {
		results[i].Path = paths[i]
		value, err := f.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return results, apperrors.Cancelled(ctx.Err())
			}
			failed++
			results[i].Err = err
			results[i].Error = err.Error()
			results[i].Code = apperrors.GetCode(err)
			continue
		}
		results[i].Result = value.(*profiling.AnalysisResult)
	}

	s.logger.Info("Analyzed %d files (%d failed) in %v", len(paths), failed, time.Since(start))
	return results, nil
}
