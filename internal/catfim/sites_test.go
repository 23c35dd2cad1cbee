package catfim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/sites"
	"github.com/sells-group/catfim/internal/vectorize"
)

func gauge(lid string, lat, lon float64) *model.SiteMetadata {
	m := &model.SiteMetadata{}
	m.Identifiers.NWSLID = lid
	m.NWSData.Name = "Test Creek at " + lid
	m.NWSData.WFO = "EWX"
	m.NWSData.RFC = "WGRFC"
	m.NWSData.State = "Texas"
	m.NWSData.County = "Travis"
	m.NWSData.Latitude = model.Float(lat)
	m.NWSData.Longitude = model.Float(lon)
	m.NWSData.HorizontalDatumName = "NAD83"
	return m
}

func TestSiteRecords(t *testing.T) {
	groups := map[string][]*model.SiteMetadata{
		"12090302": {gauge("XXXB1", 30.3, -97.7)},
		"12090301": {gauge("XXXA2", 30.2, -97.8), gauge("XXXA1", 30.1, -97.9)},
	}
	acc := sites.NewAcceptance(config.AcceptanceConfig{
		AltMethodCodes: []string{"D", "L"}, SiteTypes: []string{"ST"}, AltAccuracyThreshold: 1,
	})
	msgs := map[string]string{"xxxa2": model.StatusNoSegments}

	recs, err := SiteRecords(groups, msgs, acc, vectorize.NewVersions("4.5.2.11", "2.2"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"xxxa1", "xxxa2", "xxxb1"},
		[]string{recs[0].AHPSLID, recs[1].AHPSLID, recs[2].AHPSLID})
	assert.Equal(t, "12090302", recs[2].HUC)
	assert.Equal(t, model.StatusGood, recs[0].Status)
	assert.Equal(t, model.StatusNoSegments, recs[1].Status)
	assert.Equal(t, "D,L", recs[0].AcceptableAltMethodCodes)
	assert.Equal(t, "HAND 4_5_2_11", recs[0].ModelVersion)
	assert.Equal(t, "CatFIM 2_2", recs[0].ProductVersion)
	assert.InDelta(t, -10898214, recs[0].X, 2000)
	assert.InDelta(t, 3516360, recs[0].Y, 2000)
}

func TestProducedLIDsAndReconcile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"12090301_xxxa1_action_2p0ft_extent_dissolved.gpkg",
		"12090301_xxxa3_major_extent_dissolved.gpkg",
		"notes.gpkg",
		"12090301_xxxa2_minor_extent.tif",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	produced, err := ProducedLIDs(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"xxxa1": true, "xxxa3": true}, produced)

	recs := []model.SiteRecord{
		{AHPSLID: "xxxa1", Status: model.StatusGood},
		{AHPSLID: "xxxa2", Status: model.StatusGood},
		{AHPSLID: "xxxa3", Status: "---Missing stage data for record"},
		{AHPSLID: "xxxa4", Status: model.StatusElevDiscrepancy},
	}
	Reconcile(recs, produced)
	assert.Equal(t, []string{"yes", "no", "yes", "no"},
		[]string{recs[0].Mapped, recs[1].Mapped, recs[2].Mapped, recs[3].Mapped})
	assert.Equal(t, model.StatusGood, recs[0].Status)
	assert.Equal(t, model.StatusNoInundatedFiles, recs[1].Status)
	assert.Equal(t, "Missing stage data for record", recs[2].Status)
	assert.Equal(t, model.StatusElevDiscrepancy, recs[3].Status)
}

func TestProducedLIDsMissingDir(t *testing.T) {
	produced, err := ProducedLIDs(filepath.Join(t.TempDir(), "gpkg"))
	require.NoError(t, err)
	assert.Empty(t, produced)
}

func TestWriteReadSites(t *testing.T) {
	dir := t.TempDir()
	recs := []model.SiteRecord{
		{AHPSLID: "xxxa1", Name: "Test Creek", HUC: "12090301", Lat: 30.1, Lon: -97.9,
			X: -10898000, Y: 3515000, Mapped: "yes", Status: model.StatusGood, AcceptableAltAccThresh: 1},
		{AHPSLID: "xxxa2", HUC: "12090301", Mapped: "no", Status: model.StatusNoSegments},
	}
	gp, csvPath := filepath.Join(dir, "sites.gpkg"), filepath.Join(dir, "sites.csv")
	require.NoError(t, WriteSites(context.Background(), gp, csvPath, recs))

	got, err := ReadSites(context.Background(), gp)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[0], got[0])
	assert.Equal(t, "", got[1].Name)
	assert.Equal(t, model.StatusNoSegments, got[1].Status)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ahps_lid,name,WFO,rfc,huc")
	assert.Contains(t, string(data), "xxxa2,,,,12090301")
}
