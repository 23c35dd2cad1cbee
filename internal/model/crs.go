package model

import "strings"

// EPSG codes used across the pipeline.
const (
	EPSGNAD27       = 4267
	EPSGNAD83       = 4269
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

// HorizontalDatumEPSG maps a horizontal datum name as reported by the
// metadata service to its geographic EPSG code.
func HorizontalDatumEPSG(name string) (int, bool) {
	n := strings.ToUpper(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name))
	switch n {
	case "NAD27", "NAD1927":
		return EPSGNAD27, true
	case "NAD83", "NAD1983":
		return EPSGNAD83, true
	case "WGS84", "WGS1984":
		return EPSGWGS84, true
	}
	return 0, false
}
