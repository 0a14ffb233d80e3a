package ports

import (
	"context"

	"goprofile/domain/table"
)

// RowSource is a single forward pass over a tabular dataset. Next returns
// io.EOF after the last row. Each returned row is owned by the caller. Rows
// may be shorter than Columns(); missing trailing cells are treated as absent.
type RowSource interface {
	Columns() []string
	Next(ctx context.Context) (table.Row, error)
}

// ProgressReporter is implemented by sources that know how far along they are.
// total <= 0 means the size is unknown.
type ProgressReporter interface {
	Progress() (consumed, total int64)
}

// RowCounter is implemented by sources that know their exact row count
type RowCounter interface {
	TotalRows() (int64, bool)
}

// ClosableRowSource is a RowSource holding an open file or stream
type ClosableRowSource interface {
	RowSource
	Close() error
}
