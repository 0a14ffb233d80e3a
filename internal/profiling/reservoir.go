package profiling

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	domain "goprofile/domain/profiling"
	"goprofile/domain/table"
)

// NewRand returns a seeded generator; seed 0 means seed from the clock.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Reservoir makes Algorithm R decisions for a stream of unknown length.
// It stores nothing itself so one decision can be applied to a whole row.
type Reservoir struct {
	capacity int
	seen     int64
	rng      *rand.Rand
}

// NewReservoir creates a decision stream with capacity k
func NewReservoir(capacity int, rng *rand.Rand) (*Reservoir, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("reservoir capacity must not be negative, got %d", capacity)
	}
	if rng == nil {
		rng = NewRand(0)
	}
	return &Reservoir{capacity: capacity, rng: rng}, nil
}

// Offer decides the fate of the next item. When keep is true the item goes
// into slot, overwriting whatever was there.
func (r *Reservoir) Offer() (slot int, keep bool) {
	r.seen++
	i := r.seen
	if i <= int64(r.capacity) {
		return int(i - 1), true
	}
	j := r.rng.Int63n(i) + 1
	if j <= int64(r.capacity) {
		return int(j - 1), true
	}
	return 0, false
}

// Seen returns the number of items offered so far
func (r *Reservoir) Seen() int64 { return r.seen }

// Capacity returns the current capacity
func (r *Reservoir) Capacity() int { return r.capacity }

// RowSampler keeps a uniform sample of whole rows so every column shares the
// same retained row indices.
type RowSampler struct {
	columns []string
	res     *Reservoir
	rows    []table.Row
	indices []int64
}

// NewRowSampler creates a row-aligned sampler over the given columns
func NewRowSampler(columns []string, capacity int, rng *rand.Rand) (*RowSampler, error) {
	res, err := NewReservoir(capacity, rng)
	if err != nil {
		return nil, err
	}
	return &RowSampler{
		columns: columns,
		res:     res,
		rows:    make([]table.Row, 0, min(capacity, 1024)),
		indices: make([]int64, 0, min(capacity, 1024)),
	}, nil
}

// Offer samples the row at rowIndex. A kept row is copied and padded to the
// column count.
func (s *RowSampler) Offer(rowIndex int64, row table.Row) bool {
	slot, keep := s.res.Offer()
	if !keep {
		return false
	}

	stored := make(table.Row, len(s.columns))
	for j := range stored {
		stored[j] = row.At(j)
	}

	if slot == len(s.rows) {
		s.rows = append(s.rows, stored)
		s.indices = append(s.indices, rowIndex)
	} else {
		s.rows[slot] = stored
		s.indices[slot] = rowIndex
	}
	return true
}

// Shrink lowers capacity to newCapacity, keeping a uniform random subset of the
// retained rows. Later offers continue with the smaller capacity, so every row
// seen still has the same retention probability.
func (s *RowSampler) Shrink(newCapacity int) {
	if newCapacity < 0 || newCapacity >= s.res.capacity {
		return
	}
	if newCapacity < len(s.rows) {
		// partial Fisher-Yates: the first newCapacity slots become a uniform subset
		for i := 0; i < newCapacity; i++ {
			j := i + s.res.rng.Intn(len(s.rows)-i)
			s.rows[i], s.rows[j] = s.rows[j], s.rows[i]
			s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
		}
		s.rows = s.rows[:newCapacity]
		s.indices = s.indices[:newCapacity]
	}
	s.res.capacity = newCapacity
}

// Capacity returns the current reservoir capacity
func (s *RowSampler) Capacity() int { return s.res.capacity }

// Offered returns how many rows were offered to the sampler
func (s *RowSampler) Offered() int64 { return s.res.seen }

// Len returns the number of retained rows
func (s *RowSampler) Len() int { return len(s.rows) }

// Rows returns the retained rows ordered by source row index
func (s *RowSampler) Rows() ([]int64, []table.Row) {
	order := make([]int, len(s.rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return s.indices[order[a]] < s.indices[order[b]] })

	indices := make([]int64, len(order))
	rows := make([]table.Row, len(order))
	for i, o := range order {
		indices[i] = s.indices[o]
		rows[i] = s.rows[o]
	}
	return indices, rows
}

// ColumnSample extracts column j from the retained rows
func (s *RowSampler) ColumnSample(j int, countSeen int64) domain.ColumnSample {
	indices, rows := s.Rows()
	values := make([]table.Cell, len(rows))
	for i, row := range rows {
		values[i] = row.At(j)
	}
	name := ""
	if j >= 0 && j < len(s.columns) {
		name = s.columns[j]
	}
	return domain.ColumnSample{
		Name:          name,
		Index:         j,
		Values:        values,
		RowIndices:    indices,
		CountSeen:     countSeen,
		CountRetained: len(values),
	}
}
