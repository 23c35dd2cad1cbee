package sites

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/model"
)

// Acceptance applies the gauge data-quality codes. Coordinate accuracy and
// coordinate method codes are not enforced.
type Acceptance struct {
	AltMethodCodes       []string
	SiteTypes            []string
	AltAccuracyThreshold float64
}

// NewAcceptance builds the rules from configuration.
func NewAcceptance(cfg config.AcceptanceConfig) Acceptance {
	return Acceptance{
		AltMethodCodes:       cfg.AltMethodCodes,
		SiteTypes:            cfg.SiteTypes,
		AltAccuracyThreshold: cfg.AltAccuracyThreshold,
	}
}

// AcceptElevRow reports whether an elevation table row passes the codes.
func (a Acceptance) AcceptElevRow(r hand.ElevRow) bool {
	return slices.Contains(a.AltMethodCodes, r.AltMethodCode) &&
		slices.Contains(a.SiteTypes, r.SiteType) &&
		r.AltAccuracyCode.Valid && r.AltAccuracyCode.Value <= a.AltAccuracyThreshold
}

// GaugeElevation returns the HAND elevation (m) of lid from the acceptable
// rows of an elevation table. When the gauge sits on two level paths the
// row off branch zero is used. A non-empty status is a rejection.
func (a Acceptance) GaugeElevation(rows []hand.ElevRow, lid string) (elev float64, status string) {
	lid = strings.ToUpper(lid)
	var matches []hand.ElevRow
	for _, r := range rows {
		if r.NWSLID == lid && a.AcceptElevRow(r) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return 0, model.StatusNoGageData
	}
	pick := matches[0]
	if len(matches) == 2 {
		for _, r := range matches {
			if r.LevpaID != 0 {
				pick = r
				break
			}
		}
	}
	if !pick.DemAdjElevation.Valid || pick.DemAdjElevation.Value == 0 {
		return 0, model.StatusZeroElevation
	}
	return pick.DemAdjElevation.Value, ""
}

// CheckMetadata applies the codes to the gauge's own USGS metadata and
// returns a short reason on rejection.
func (a Acceptance) CheckMetadata(m *model.SiteMetadata) (bool, string) {
	u := m.USGSData
	switch {
	case !slices.Contains(a.AltMethodCodes, u.AltMethodCode):
		return false, fmt.Sprintf("alt_method_code %q not accepted", u.AltMethodCode)
	case !slices.Contains(a.SiteTypes, u.SiteType):
		return false, fmt.Sprintf("site_type %q not accepted", u.SiteType)
	case !u.AltAccuracyCode.Valid:
		return false, "alt_accuracy_code missing"
	case u.AltAccuracyCode.Value > a.AltAccuracyThreshold:
		return false, fmt.Sprintf("alt_accuracy_code %s above %s", u.AltAccuracyCode, model.Float(a.AltAccuracyThreshold))
	}
	return true, ""
}

// Lists renders the code lists for the sites output columns.
func (a Acceptance) Lists() (methods, types string) {
	return strings.Join(a.AltMethodCodes, ","), strings.Join(a.SiteTypes, ",")
}
