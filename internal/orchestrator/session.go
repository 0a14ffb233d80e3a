package orchestrator

import (
	"sync"
	"time"

	"goprofile/domain/core"
	estimators "goprofile/internal/profiling"
)

// SessionState is the phase an analysis run is in
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateStreaming   SessionState = "streaming"
	SessionStateClassifying SessionState = "classifying"
	SessionStateAnalyzing   SessionState = "analyzing"
	SessionStateComplete    SessionState = "complete"
	SessionStateError       SessionState = "error"
)

// Session owns every piece of mutable state of one analysis run. Nothing in
// it outlives the run.
type Session struct {
	RunID     core.RunID
	Source    string
	Columns   []string
	StartedAt time.Time

	accumulators []*estimators.ColumnAccumulator
	sampler      *estimators.RowSampler
	groups       []columnGroup

	baseStride int
	stride     int
	capped     bool
	observed   *float64 // fraction of the source read when capped, nil when unknown
	warnings   []string

	mu       sync.RWMutex
	state    SessionState
	rowsRead int64
}

// columnGroup is a contiguous range of columns owned by one worker
type columnGroup struct {
	lo, hi int
}

func newSession(source string, columns []string, cfg Config) (*Session, error) {
	s := &Session{
		RunID:      core.NewRunID(),
		Source:     source,
		Columns:    columns,
		StartedAt:  time.Now(),
		baseStride: 1,
		stride:     1,
		state:      SessionStateIdle,
	}

	s.accumulators = make([]*estimators.ColumnAccumulator, len(columns))
	for j, name := range columns {
		acc, err := estimators.NewColumnAccumulator(name, j, cfg.Quantiles)
		if err != nil {
			return nil, configError("quantiles", err.Error())
		}
		s.accumulators[j] = acc
	}

	sampler, err := estimators.NewRowSampler(columns, cfg.ReservoirSize, estimators.NewRand(cfg.Seed))
	if err != nil {
		return nil, configError("reservoir_size", err.Error())
	}
	s.sampler = sampler
	s.groups = splitColumns(len(columns), cfg.ColumnWorkers)
	return s, nil
}

// splitColumns partitions n columns into at most workers contiguous groups
func splitColumns(n, workers int) []columnGroup {
	if workers > n {
		workers = n
	}
	if workers < 1 {
		return nil
	}
	groups := make([]columnGroup, 0, workers)
	size, extra := n/workers, n%workers
	lo := 0
	for w := 0; w < workers; w++ {
		hi := lo + size
		if w < extra {
			hi++
		}
		groups = append(groups, columnGroup{lo: lo, hi: hi})
		lo = hi
	}
	return groups
}

// State returns the current phase
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// RowsRead returns how many rows have been consumed so far
func (s *Session) RowsRead() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowsRead
}

func (s *Session) addRows(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsRead += int64(n)
}

func (s *Session) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}
