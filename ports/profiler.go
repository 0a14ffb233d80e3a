package ports

import (
	"context"

	"goprofile/domain/profiling"
)

// ProfilerPort analyzes a row source in one streaming pass
type ProfilerPort interface {
	AnalyzeStream(ctx context.Context, source string, rows RowSource) (*profiling.AnalysisResult, error)
}
