package monitoring

import (
	"strings"

	"github.com/sells-group/catfim/internal/model"
)

// Status kinds used as metric labels.
const (
	KindGood       = "good"
	KindWarning    = "warning"
	KindDatum      = "datum"
	KindAcceptance = "acceptance"
	KindHUCError   = "huc_error"
	KindNoData     = "no_data"
	KindNoExtent   = "no_extent"
	KindOther      = "other"
)

// StatusKind folds a final status text into a bounded label.
func StatusKind(status string) string {
	switch {
	case status == model.StatusGood:
		return KindGood
	case model.IsWarning(status), strings.HasPrefix(status, "Missing "):
		return KindWarning
	case strings.HasPrefix(status, model.StatusDatumPrefix), status == model.StatusDatumUnavailable:
		return KindDatum
	case strings.HasPrefix(status, model.StatusAcceptancePrefix):
		return KindAcceptance
	case strings.HasPrefix(status, model.StatusHUCFailurePrefix):
		return KindHUCError
	case status == model.StatusNoInundatedFiles, status == model.StatusAllStagesFailed:
		return KindNoExtent
	}
	switch status {
	case model.StatusThresholdFetch, model.StatusNoThresholds, model.StatusNoGageData,
		model.StatusZeroElevation, model.StatusBadAltitude, model.StatusNoSegments,
		model.StatusNoRatingSource, model.StatusMetadataMissing, model.StatusNoFlowValues,
		model.StatusMissingAllFlows, model.StatusInvalidLID:
		return KindNoData
	}
	return KindOther
}

// Snapshot summarizes the sites library of one run.
type Snapshot struct {
	Total        int            `json:"total"`
	Mapped       int            `json:"mapped"`
	Unmapped     int            `json:"unmapped"`
	UnmappedRate float64        `json:"unmapped_rate"`
	HUCs         int            `json:"hucs"`
	HUCFailures  int            `json:"huc_failures"`
	ByKind       map[string]int `json:"by_kind"`
}

// Collect builds a snapshot from the final site records.
func Collect(recs []model.SiteRecord, hucFailures int) *Snapshot {
	snap := &Snapshot{Total: len(recs), HUCFailures: hucFailures, ByKind: make(map[string]int)}
	hucs := make(map[string]bool)
	for _, r := range recs {
		if r.Mapped == "yes" {
			snap.Mapped++
		} else {
			snap.Unmapped++
		}
		snap.ByKind[StatusKind(r.Status)]++
		if r.HUC != "" {
			hucs[r.HUC] = true
		}
	}
	snap.HUCs = len(hucs)
	if snap.Total > 0 {
		snap.UnmappedRate = float64(snap.Unmapped) / float64(snap.Total)
	}
	return snap
}
