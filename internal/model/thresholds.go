package model

// Rating-curve sources in order of preference.
const (
	SourceUSGSRatingDepot = "USGS Rating Depot"
	SourceNRLDB           = "NRLDB"
)

// CategoryValues holds one optional value per category.
type CategoryValues struct {
	Action   OptFloat `json:"action"`
	Minor    OptFloat `json:"minor"`
	Moderate OptFloat `json:"moderate"`
	Major    OptFloat `json:"major"`
	Record   OptFloat `json:"record"`
}

// Get returns the value for c.
func (v CategoryValues) Get(c Category) OptFloat {
	switch c {
	case Action:
		return v.Action
	case Minor:
		return v.Minor
	case Moderate:
		return v.Moderate
	case Major:
		return v.Major
	case Record:
		return v.Record
	}
	return OptFloat{}
}

// Set stores val for c.
func (v *CategoryValues) Set(c Category, val OptFloat) {
	switch c {
	case Action:
		v.Action = val
	case Minor:
		v.Minor = val
	case Moderate:
		v.Moderate = val
	case Major:
		v.Major = val
	case Record:
		v.Record = val
	}
}

// Usable returns the value for c when it is present and positive. Values at
// or below zero are treated as absent.
func (v CategoryValues) Usable(c Category) (float64, bool) {
	o := v.Get(c)
	if !o.Positive() {
		return 0, false
	}
	return o.Value, true
}

// Present returns the categories with a usable value and those without, both
// in ascending severity.
func (v CategoryValues) Present() (present, missing []Category) {
	for _, c := range Categories {
		if _, ok := v.Usable(c); ok {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	return present, missing
}

// ThresholdSet is the resolved threshold record for one gauge.
type ThresholdSet struct {
	Stages CategoryValues
	Flows  CategoryValues

	StageSource   string // metadata.threshold_source
	FlowSource    string // calc_flow_values.rating_curve.source
	StageUnits    string
	FlowUnits     string
	WRDSTimestamp string
	NWSLID        string
	USGSSiteCode  string
}

// Empty reports whether the set carries no usable stage and no usable flow.
func (t *ThresholdSet) Empty() bool {
	if t == nil {
		return true
	}
	for _, c := range Categories {
		if _, ok := t.Stages.Usable(c); ok {
			return false
		}
		if _, ok := t.Flows.Usable(c); ok {
			return false
		}
	}
	return true
}
