package model

// AttributeRow is one row of a per-gauge attributes CSV in flow mode.
type AttributeRow struct {
	NWSLID      string `csv:"nws_lid"`
	Name        string `csv:"name"`
	WFO         string `csv:"WFO"`
	RFC         string `csv:"rfc"`
	HUC         string `csv:"huc"`
	State       string `csv:"state"`
	County      string `csv:"county"`
	Magnitude   string `csv:"magnitude"`
	Q           string `csv:"q"`
	QUnits      string `csv:"q_uni"`
	QSource     string `csv:"q_src"`
	Stage       string `csv:"stage"`
	StageUnits  string `csv:"stage_uni"`
	StageSource string `csv:"s_src"`
	WRDSTime    string `csv:"wrds_time"`
	NRLDBTime   string `csv:"nrldb_time"`
	NWISTime    string `csv:"nwis_time"`
	Lat         string `csv:"lat"`
	Lon         string `csv:"lon"`
}

// StageAttributeRow adds the datum columns written in stage mode. Reading
// a flow-mode file into it leaves them empty.
type StageAttributeRow struct {
	AttributeRow
	DatumAdjFt   string `csv:"dtm_adj_ft"`
	DatumAdjWSE  string `csv:"dadj_w_ft"`
	DatumAdjWSEM string `csv:"dadj_w_m"`
	LIDAltFt     string `csv:"lid_alt_ft"`
	LIDAltM      string `csv:"lid_alt_m"`
}

// SiteRecord is one row of the sites library.
type SiteRecord struct {
	AHPSLID        string  `csv:"ahps_lid"`
	Name           string  `csv:"name"`
	WFO            string  `csv:"WFO"`
	RFC            string  `csv:"rfc"`
	HUC            string  `csv:"huc"`
	State          string  `csv:"state"`
	County         string  `csv:"county"`
	Lat            float64 `csv:"lat"`
	Lon            float64 `csv:"lon"`
	X              float64 `csv:"x"`
	Y              float64 `csv:"y"`
	Mapped         string  `csv:"mapped"`
	Status         string  `csv:"status"`
	ModelVersion   string  `csv:"model_version"`
	ProductVersion string  `csv:"product_version"`

	AcceptableAltMethodCodes string  `csv:"acceptable_alt_meth_code_list"`
	AcceptableSiteTypes      string  `csv:"acceptable_site_type_list"`
	AcceptableAltAccThresh   float64 `csv:"acceptable_alt_acc_thresh"`
}

// LibraryRecord is one row of the CatFIM library. Geometry is kept next to
// the record as EPSG:3857 WKB.
type LibraryRecord struct {
	AHPSLID        string `csv:"ahps_lid"`
	Magnitude      string `csv:"magnitude"`
	Stage          string `csv:"stage"`
	IntervalStage  string `csv:"interval_stage"`
	HUC            string `csv:"huc"`
	Name           string `csv:"name"`
	WFO            string `csv:"WFO"`
	RFC            string `csv:"rfc"`
	State          string `csv:"state"`
	County         string `csv:"county"`
	Q              string `csv:"q"`
	QUnits         string `csv:"q_uni"`
	QSource        string `csv:"q_src"`
	StageUnits     string `csv:"stage_uni"`
	StageSource    string `csv:"s_src"`
	WRDSTime       string `csv:"wrds_time"`
	NRLDBTime      string `csv:"nrldb_time"`
	NWISTime       string `csv:"nwis_time"`
	Lat            string `csv:"lat"`
	Lon            string `csv:"lon"`
	ModelVersion   string `csv:"model_version"`
	ProductVersion string `csv:"product_version"`

	Geometry []byte `csv:"-"`
}
