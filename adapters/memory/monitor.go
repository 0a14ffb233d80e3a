package memory

import (
	"runtime"
	"sync/atomic"

	"goprofile/ports"
)

// RuntimeMonitor derives memory pressure from the Go heap against a soft limit.
// Medium starts at 70% of the limit and high at 90%.
type RuntimeMonitor struct {
	limitBytes uint64
	read       func() uint64
}

// NewRuntimeMonitor creates a monitor for the given soft limit in megabytes.
// A limit of 0 always reports low pressure.
func NewRuntimeMonitor(softLimitMB int) *RuntimeMonitor {
	return &RuntimeMonitor{
		limitBytes: uint64(softLimitMB) * 1024 * 1024,
		read:       heapInUse,
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// Pressure implements ports.MemoryMonitor
func (m *RuntimeMonitor) Pressure() ports.MemoryPressure {
	if m.limitBytes == 0 {
		return ports.MemoryPressureLow
	}
	return levelFor(m.read(), m.limitBytes)
}

func levelFor(used, limit uint64) ports.MemoryPressure {
	switch {
	case used >= limit/10*9:
		return ports.MemoryPressureHigh
	case used >= limit/10*7:
		return ports.MemoryPressureMedium
	default:
		return ports.MemoryPressureLow
	}
}

// Static reports a settable pressure level, for tests and fixed deployments
type Static struct {
	level atomic.Int32
}

// NewStatic creates a static monitor at the given level
func NewStatic(level ports.MemoryPressure) *Static {
	s := &Static{}
	s.Set(level)
	return s
}

// Set changes the reported level
func (s *Static) Set(level ports.MemoryPressure) { s.level.Store(int32(level)) }

// Pressure implements ports.MemoryMonitor
func (s *Static) Pressure() ports.MemoryPressure { return ports.MemoryPressure(s.level.Load()) }

// Sequence replays a fixed list of levels, one per poll, then repeats the last
type Sequence struct {
	levels []ports.MemoryPressure
	polls  atomic.Int64
}

// NewSequence creates a scripted monitor
func NewSequence(levels ...ports.MemoryPressure) *Sequence {
	return &Sequence{levels: levels}
}

// Pressure implements ports.MemoryMonitor
func (s *Sequence) Pressure() ports.MemoryPressure {
	if len(s.levels) == 0 {
		return ports.MemoryPressureLow
	}
	i := s.polls.Add(1) - 1
	if i >= int64(len(s.levels)) {
		i = int64(len(s.levels)) - 1
	}
	return s.levels[i]
}

// Polls returns how many times Pressure was called
func (s *Sequence) Polls() int64 { return s.polls.Load() }
