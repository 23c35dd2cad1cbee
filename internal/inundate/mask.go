package inundate

import (
	"github.com/sells-group/catfim/internal/model"
)

// Tile is one window of co-registered REM and catchments values.
type Tile struct {
	REM          []float32
	REMNoData    float64
	HasREMNoData bool
	Catchments   []int32
	CatNoData    int32
}

func (t Tile) remValid(i int) (float64, bool) {
	v := float64(t.REM[i])
	if t.HasREMNoData && v == t.REMNoData {
		return 0, false
	}
	return v, v >= model.DryREM
}

// Mask fills out with 1 where a tile is inundated and reports whether any
// pixel was set.
type Mask interface {
	Apply(t Tile, out []uint8) bool
}

// StageMask floods every catchment of the gauge's reaches up to one HAND
// stage.
type StageMask struct {
	// HandStageM is the water height above the drainage, in metres.
	HandStageM float64
	// HydroIDs holds the catchments to flood; the stored stage is ignored.
	HydroIDs *StageTable
}

// NewStageMask builds a StageMask over ids.
func NewStageMask(handStageM float64, ids []int64) StageMask {
	t := NewStageTable(len(ids))
	for _, id := range ids {
		t.Put(id, 0)
	}
	return StageMask{HandStageM: handStageM, HydroIDs: t}
}

// Apply implements Mask.
func (m StageMask) Apply(t Tile, out []uint8) bool {
	wet := false
	for i := range out {
		out[i] = 0
		cat := t.Catchments[i]
		if cat == t.CatNoData {
			continue
		}
		rem, ok := t.remValid(i)
		if !ok || rem > m.HandStageM {
			continue
		}
		if m.HydroIDs.Get(cat) == model.MissingStageMM {
			continue
		}
		out[i] = 1
		wet = true
	}
	return wet
}

// FlowMask floods each catchment up to its own interpolated stage.
type FlowMask struct {
	Stages *StageTable
	// DepthCapM rejects pixels whose implied depth reaches the cap.
	DepthCapM float64
}

// NewFlowMask builds a FlowMask from per-HydroID stages (m).
func NewFlowMask(stages map[int64]float64, depthCapM float64) FlowMask {
	t := NewStageTable(len(stages))
	for id, s := range stages {
		t.Put(id, s)
	}
	return FlowMask{Stages: t, DepthCapM: depthCapM}
}

// Apply implements Mask.
func (m FlowMask) Apply(t Tile, out []uint8) bool {
	wet := false
	for i := range out {
		out[i] = 0
		cat := t.Catchments[i]
		if cat == t.CatNoData {
			continue
		}
		mm := m.Stages.Get(cat)
		if mm == model.MissingStageMM {
			continue
		}
		rem, ok := t.remValid(i)
		if !ok {
			continue
		}
		stage := float64(mm) / 1000
		if rem > stage || stage-rem >= m.DepthCapM {
			continue
		}
		out[i] = 1
		wet = true
	}
	return wet
}
