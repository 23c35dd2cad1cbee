package sites

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/model"
)

const restrictedCSV = `nws_lid,restricted_reason,catfim_type
# comment line, ignored
 xxxa1 , Gauge under review ,both
xxxb1,Levee failure area,stage
xxxb1,Levee failure area,stage
xxxb1,Reservoir release,flow
toolong,Too long,both
xxxc1,,flow
xxxd1,Unknown scope,coastal
`

func TestParseRestricted(t *testing.T) {
	reg, err := ParseRestricted(strings.NewReader(restrictedCSV))
	require.NoError(t, err)
	assert.Equal(t, 5, reg.Len())

	stage := reg.ForScope(ScopeStage)
	assert.Equal(t, []Restricted{
		{LID: "XXXA1", Reason: "Gauge under review", Scope: ScopeBoth},
		{LID: "XXXB1", Reason: "Levee failure area", Scope: ScopeStage},
		{LID: "XXXD1", Reason: "Unknown scope", Scope: ScopeBoth},
	}, stage)

	flow := reg.ForScope(ScopeFlow)
	require.Len(t, flow, 4)
	assert.Equal(t, "XXXB1", flow[1].LID)
	assert.Equal(t, "Reservoir release", flow[1].Reason)
	assert.Equal(t, DefaultReason, flow[2].Reason)
}

func TestLookup(t *testing.T) {
	reg, err := ParseRestricted(strings.NewReader(restrictedCSV))
	require.NoError(t, err)

	reason, ok := reg.Lookup("xxxa1", ScopeFlow)
	assert.True(t, ok)
	assert.Equal(t, "Gauge under review", reason)

	reason, ok = reg.Lookup("XXXB1", ScopeFlow)
	assert.True(t, ok)
	assert.Equal(t, "Reservoir release", reason)

	_, ok = reg.Lookup("xxxc1", ScopeStage)
	assert.False(t, ok)

	var nilReg *Registry
	_, ok = nilReg.Lookup("xxxa1", ScopeStage)
	assert.False(t, ok)
}

func TestLoadRestrictedPackaged(t *testing.T) {
	reg, err := LoadRestricted("")
	require.NoError(t, err)
	for _, e := range reg.ForScope(ScopeStage) {
		assert.Len(t, e.LID, 5)
	}
}

func TestLoadRestrictedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.csv")
	require.NoError(t, os.WriteFile(path, []byte(restrictedCSV), 0o644))
	reg, err := LoadRestricted(path)
	require.NoError(t, err)
	assert.Equal(t, 5, reg.Len())

	_, err = LoadRestricted(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func testAcceptance() Acceptance {
	return Acceptance{AltMethodCodes: []string{"L", "D"}, SiteTypes: []string{"ST"}, AltAccuracyThreshold: 1}
}

func TestGaugeElevation(t *testing.T) {
	a := testAcceptance()
	rows := []hand.ElevRow{
		{NWSLID: "XXXA1", LevpaID: 0, DemAdjElevation: model.Float(210), AltMethodCode: "L", SiteType: "ST", AltAccuracyCode: model.Float(0.1)},
		{NWSLID: "XXXA1", LevpaID: 7170000001, DemAdjElevation: model.Float(211), AltMethodCode: "L", SiteType: "ST", AltAccuracyCode: model.Float(0.1)},
		{NWSLID: "XXXB1", DemAdjElevation: model.Float(100), AltMethodCode: "Q", SiteType: "ST", AltAccuracyCode: model.Float(0.1)},
		{NWSLID: "XXXC1", DemAdjElevation: model.Float(0), AltMethodCode: "D", SiteType: "ST", AltAccuracyCode: model.Float(1)},
		{NWSLID: "XXXD1", DemAdjElevation: model.Float(50), AltMethodCode: "D", SiteType: "ST", AltAccuracyCode: model.Float(2)},
		{NWSLID: "XXXE1", DemAdjElevation: model.Float(75), AltMethodCode: "D", SiteType: "ST", AltAccuracyCode: model.Float(0.5)},
	}

	tests := []struct {
		lid    string
		elev   float64
		status string
	}{
		{"xxxa1", 211, ""},
		{"xxxb1", 0, model.StatusNoGageData},
		{"xxxc1", 0, model.StatusZeroElevation},
		{"xxxd1", 0, model.StatusNoGageData},
		{"xxxe1", 75, ""},
		{"xxxz1", 0, model.StatusNoGageData},
	}
	for _, tt := range tests {
		t.Run(tt.lid, func(t *testing.T) {
			elev, status := a.GaugeElevation(rows, tt.lid)
			assert.Equal(t, tt.status, status)
			assert.InDelta(t, tt.elev, elev, 1e-9)
		})
	}
}

func TestCheckMetadata(t *testing.T) {
	a := testAcceptance()
	meta := func(method, siteType string, acc model.OptFloat) *model.SiteMetadata {
		return &model.SiteMetadata{USGSData: model.USGSData{AltMethodCode: method, SiteType: siteType, AltAccuracyCode: acc}}
	}

	ok, reason := a.CheckMetadata(meta("L", "ST", model.Float(0.5)))
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = a.CheckMetadata(meta("Q", "ST", model.Float(0.5)))
	assert.False(t, ok)
	assert.Contains(t, reason, "alt_method_code")

	ok, reason = a.CheckMetadata(meta("L", "LK", model.Float(0.5)))
	assert.False(t, ok)
	assert.Contains(t, reason, "site_type")

	ok, reason = a.CheckMetadata(meta("L", "ST", model.OptFloat{}))
	assert.False(t, ok)
	assert.Equal(t, "alt_accuracy_code missing", reason)

	ok, reason = a.CheckMetadata(meta("L", "ST", model.Float(1.5)))
	assert.False(t, ok)
	assert.Equal(t, "alt_accuracy_code 1.5 above 1", reason)
}

func TestLists(t *testing.T) {
	methods, types := testAcceptance().Lists()
	assert.Equal(t, "L,D", methods)
	assert.Equal(t, "ST", types)
}
