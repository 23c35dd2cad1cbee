// Package inundate turns a HAND branch (REM, catchments, hydro-table) and
// a target stage or flow into a binary extent raster.
package inundate

import (
	"math"

	"github.com/sells-group/catfim/internal/model"
)

const emptyKey int32 = math.MinInt32

// hydroKey folds a HydroID into the table key space: its last 8 digits.
func hydroKey(hydroID int64) int32 {
	return int32(hydroID % 100_000_000)
}

// StageTable is a flat open-addressed hash (linear probing) from HydroID
// key to stage in millimetres. Lookups of unknown keys return
// model.MissingStageMM.
type StageTable struct {
	keys []int32
	vals []int32
	mask uint32
	n    int
}

// NewStageTable sizes a table for n entries at a load factor of at most 0.5.
func NewStageTable(n int) *StageTable {
	size := 8
	for size < 2*n {
		size <<= 1
	}
	t := &StageTable{
		keys: make([]int32, size),
		vals: make([]int32, size),
		mask: uint32(size - 1),
	}
	for i := range t.keys {
		t.keys[i] = emptyKey
	}
	return t
}

func (t *StageTable) slot(k int32) uint32 {
	// Fibonacci hashing spreads sequential HydroIDs.
	return (uint32(k) * 2654435769) & t.mask
}

// Put stores the stage (m) of hydroID, replacing any previous value.
func (t *StageTable) Put(hydroID int64, stageM float64) {
	if 2*(t.n+1) > len(t.keys) {
		t.grow()
	}
	k := hydroKey(hydroID)
	mm := int32(math.Round(stageM * 1000))
	for i := t.slot(k); ; i = (i + 1) & t.mask {
		switch t.keys[i] {
		case emptyKey:
			t.keys[i], t.vals[i] = k, mm
			t.n++
			return
		case k:
			t.vals[i] = mm
			return
		}
	}
}

// Get returns the stage (mm) of a catchment pixel value.
func (t *StageTable) Get(pixel int32) int32 {
	k := hydroKey(int64(pixel))
	for i := t.slot(k); ; i = (i + 1) & t.mask {
		switch t.keys[i] {
		case emptyKey:
			return model.MissingStageMM
		case k:
			return t.vals[i]
		}
	}
}

// Len is the number of keys stored.
func (t *StageTable) Len() int { return t.n }

func (t *StageTable) grow() {
	old := *t
	size := len(old.keys) * 2
	t.keys = make([]int32, size)
	t.vals = make([]int32, size)
	t.mask = uint32(size - 1)
	t.n = 0
	for i := range t.keys {
		t.keys[i] = emptyKey
	}
	for i, k := range old.keys {
		if k != emptyKey {
			t.insertMM(k, old.vals[i])
		}
	}
}

func (t *StageTable) insertMM(k, mm int32) {
	for i := t.slot(k); ; i = (i + 1) & t.mask {
		if t.keys[i] == emptyKey {
			t.keys[i], t.vals[i] = k, mm
			t.n++
			return
		}
	}
}
