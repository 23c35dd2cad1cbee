package model

import "strings"

// Per-gauge status texts. A status starting with WarningPrefix keeps the
// gauge mapped.
const (
	WarningPrefix = "---"

	StatusGood             = "Good"
	StatusInvalidLID       = "This lid value is invalid"
	StatusThresholdFetch   = "Error getting thresholds from WRDS API"
	StatusNoThresholds     = "All threshold values are unavailable or invalid"
	StatusNoGageData       = "Unable to find gage data"
	StatusZeroElevation    = "DEM adjusted elevation is 0 or not set"
	StatusBadAltitude      = "AHPS site altitude value is invalid"
	StatusDatumPrefix      = "NOAA VDatum adjustment error, "
	StatusCRSMissing       = StatusDatumPrefix + "CRS is missing"
	StatusNoSegments       = "missing nwm segments"
	StatusElevDiscrepancy  = "Large discrepancy in elevation estimates from gage and HAND"
	StatusAllStagesFailed  = "All stages failed to inundate"
	StatusNoInundatedFiles = "Site resulted with no valid inundated files"
	StatusNoRatingSource   = "No source for rating curve"
	StatusDatumUnavailable = "Datum info unavailable"
	StatusMetadataMissing  = "Gauge metadata not found"
	StatusAcceptancePrefix = "Gauge metadata failed acceptance: "
	StatusHUCFailurePrefix = "HUC processing error: "
	StatusNoFlowValues     = "No valid flow values are available"
	StatusMissingAllFlows  = "Missing all calculated flows for all stages"
)

// IsWarning reports whether status keeps the gauge mapped.
func IsWarning(status string) bool {
	return strings.HasPrefix(status, WarningPrefix)
}

// MissingDataStatus builds the warning listing categories without a value,
// e.g. "---Missing stage data for minor; record". kind is "stage" or "flow".
func MissingDataStatus(kind string, missing []Category) string {
	if len(missing) == 0 {
		return ""
	}
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = string(c)
	}
	return WarningPrefix + "Missing " + kind + " data for " + strings.Join(names, "; ")
}

// DatumErrorStatus renders a VDatum failure cause as a status.
func DatumErrorStatus(cause string) string {
	return StatusDatumPrefix + cause
}

// FinalStatus applies the end-of-run reconciliation to a gauge. produced
// reports whether at least one dissolved polygon exists for it. The warning
// prefix never survives reconciliation.
func FinalStatus(status string, produced bool) (mapped, final string) {
	if status == StatusGood {
		status = ""
	}
	status = strings.TrimPrefix(status, WarningPrefix)
	if produced {
		if status == "" {
			return "yes", StatusGood
		}
		return "yes", status
	}
	if status == "" {
		return "no", StatusNoInundatedFiles
	}
	return "no", status
}
