package model

import (
	"strings"
)

// Identifiers is the identifier block of a metadata record.
type Identifiers struct {
	NWSLID       string     `json:"nws_lid"`
	USGSSiteCode string     `json:"usgs_site_code"`
	NWMFeatureID FlexString `json:"nwm_feature_id"`
}

// NWSData is the NRLDB-sourced block of a metadata record.
type NWSData struct {
	Name                string   `json:"name"`
	WFO                 string   `json:"wfo"`
	RFC                 string   `json:"rfc"`
	State               string   `json:"state"`
	County              string   `json:"county"`
	Latitude            OptFloat `json:"latitude"`
	Longitude           OptFloat `json:"longitude"`
	ZeroDatum           OptFloat `json:"zero_datum"`
	VerticalDatumName   string   `json:"vertical_datum_name"`
	HorizontalDatumName string   `json:"horizontal_datum_name"`
	RFCForecastPoint    bool     `json:"rfc_forecast_point"`
}

// USGSData is the NWIS-sourced block of a metadata record.
type USGSData struct {
	Active            bool     `json:"active"`
	State             string   `json:"state"`
	Latitude          OptFloat `json:"latitude"`
	Longitude         OptFloat `json:"longitude"`
	Altitude          OptFloat `json:"altitude"`
	AltDatumCode      string   `json:"alt_datum_code"`
	AltAccuracyCode   OptFloat `json:"alt_accuracy_code"`
	AltMethodCode     string   `json:"alt_method_code"`
	SiteType          string   `json:"site_type"`
	LatLonDatumName   string   `json:"latlon_datum_name"`
	CoordAccuracyCode string   `json:"coord_accuracy_code"`
	CoordMethodCode   string   `json:"coord_method_code"`
}

// NWMFeatureData carries the gauge's NWM reach attributes.
type NWMFeatureData struct {
	StreamOrder OptFloat `json:"stream_order"`
}

// SiteMetadata is one gauge record as returned by the metadata service and
// stored in the metadata blob. HUC is assigned locally.
type SiteMetadata struct {
	Identifiers           Identifiers    `json:"identifiers"`
	NWSData               NWSData        `json:"nws_data"`
	USGSData              USGSData       `json:"usgs_data"`
	NWMFeatureData        NWMFeatureData `json:"nwm_feature_data"`
	UpstreamNWMFeatures   []FlexString   `json:"upstream_nwm_features"`
	DownstreamNWMFeatures []FlexString   `json:"downstream_nwm_features"`

	WRDSTimestamp   string   `json:"wrds_timestamp"`
	NRLDBTimestamp  string   `json:"nrldb_timestamp"`
	NWISTimestamp   string   `json:"nwis_timestamp"`
	MetadataSources []string `json:"metadata_sources,omitempty"`

	HUC string `json:"huc,omitempty"`
}

// LID returns the lower-cased gauge identifier.
func (m *SiteMetadata) LID() string {
	return strings.ToLower(strings.TrimSpace(m.Identifiers.NWSLID))
}

// Segments lists the gauge's own NWM feature followed by its upstream and
// downstream features, without duplicates or zero ids.
func (m *SiteMetadata) Segments() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || id == "0" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(string(m.Identifiers.NWMFeatureID))
	for _, id := range m.UpstreamNWMFeatures {
		add(string(id))
	}
	for _, id := range m.DownstreamNWMFeatures {
		add(string(id))
	}
	return out
}

// DatumInfo is the flattened datum view of one metadata source.
type DatumInfo struct {
	LID      string
	USGSCode string
	State    string
	Datum    OptFloat
	VCS      string
	Lat      OptFloat
	Lon      OptFloat
	CRS      string
	Source   string
}

// Datums returns the NWS and USGS datum views of the record.
func (m *SiteMetadata) Datums() (nws, usgs DatumInfo) {
	nws = DatumInfo{
		LID:      m.Identifiers.NWSLID,
		USGSCode: m.Identifiers.USGSSiteCode,
		State:    m.NWSData.State,
		Datum:    m.NWSData.ZeroDatum,
		VCS:      m.NWSData.VerticalDatumName,
		Lat:      m.NWSData.Latitude,
		Lon:      m.NWSData.Longitude,
		CRS:      m.NWSData.HorizontalDatumName,
		Source:   "nws_data",
	}
	usgs = DatumInfo{
		LID:      m.Identifiers.NWSLID,
		USGSCode: m.Identifiers.USGSSiteCode,
		State:    m.USGSData.State,
		Datum:    m.USGSData.Altitude,
		VCS:      m.USGSData.AltDatumCode,
		Lat:      m.USGSData.Latitude,
		Lon:      m.USGSData.Longitude,
		CRS:      m.USGSData.LatLonDatumName,
		Source:   "usgs_data",
	}
	return nws, usgs
}

// Location returns the best available gauge coordinates and their datum.
// NWS coordinates are preferred; USGS ones fill in when absent.
func (m *SiteMetadata) Location() (lat, lon float64, crs string, ok bool) {
	if m.NWSData.Latitude.Valid && m.NWSData.Longitude.Valid {
		return m.NWSData.Latitude.Value, m.NWSData.Longitude.Value, m.NWSData.HorizontalDatumName, true
	}
	if m.USGSData.Latitude.Valid && m.USGSData.Longitude.Valid {
		return m.USGSData.Latitude.Value, m.USGSData.Longitude.Value, m.USGSData.LatLonDatumName, true
	}
	return 0, 0, "", false
}
