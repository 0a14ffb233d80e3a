package orchestrator

import (
	"fmt"

	"goprofile/ports"
)

// applyPressure polls the memory signal between batches. Medium pressure
// doubles the reservoir stride, high pressure also halves the reservoir
// capacity down to MinReservoirSize, low pressure restores the base stride.
// Moments and quantiles always see every row.
func (e *Engine) applyPressure(s *Session) {
	level := e.memory.Pressure()

	switch level {
	case ports.MemoryPressureMedium, ports.MemoryPressureHigh:
		if next := min(s.stride*2, e.config.MaxStride); next != s.stride {
			e.logger.Warn("%s memory pressure after %d rows: reservoir stride %d -> %d", level, s.RowsRead(), s.stride, next)
			s.warn(fmt.Sprintf("reservoir stride widened to %d after %d rows under %s memory pressure", next, s.RowsRead(), level))
			s.stride = next
		}
		if level == ports.MemoryPressureHigh {
			current := s.sampler.Capacity()
			if next := max(current/2, e.config.MinReservoirSize); next < current {
				e.logger.Warn("high memory pressure after %d rows: reservoir capacity %d -> %d", s.RowsRead(), current, next)
				s.warn(fmt.Sprintf("reservoir capacity reduced to %d after %d rows under high memory pressure", next, s.RowsRead()))
				s.sampler.Shrink(next)
			}
		}
	case ports.MemoryPressureLow:
		if s.stride != s.baseStride {
			e.logger.Info("memory pressure low after %d rows: reservoir stride restored to %d", s.RowsRead(), s.baseStride)
			s.stride = s.baseStride
		}
	}
}

// lowPressure is the monitor used when none is injected
type lowPressure struct{}

func (lowPressure) Pressure() ports.MemoryPressure { return ports.MemoryPressureLow }
