package ports

// MemoryPressure is the coarse memory signal polled between row batches
type MemoryPressure int

const (
	MemoryPressureLow MemoryPressure = iota
	MemoryPressureMedium
	MemoryPressureHigh
)

// String returns the level name
func (p MemoryPressure) String() string {
	switch p {
	case MemoryPressureLow:
		return "low"
	case MemoryPressureMedium:
		return "medium"
	case MemoryPressureHigh:
		return "high"
	}
	return "unknown"
}

// MemoryMonitor reports the current memory pressure
type MemoryMonitor interface {
	Pressure() MemoryPressure
}
