package nwm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catfim/internal/gpkg"
)

func TestLoadStreamOrdersCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwm_flows.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,order_,Length\n5001,3,10\n5002.0,4,2\n5003,3,1\n"), 0o644))

	orders, err := LoadStreamOrders(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, StreamOrders{"5001": 3, "5002": 4, "5003": 3}, orders)
	assert.Equal(t, []string{"5001", "5003"}, orders.Filter([]string{"5001", "5002", "5003", "6000"}, 3))
}

func TestLoadStreamOrdersGPKG(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nwm_flows.gpkg")
	layer := gpkg.Layer{
		Name: "nwm_flows", GeometryType: "LINESTRING", SRSID: 4326,
		Fields: []gpkg.Field{{Name: "ID", Type: gpkg.Integer}, {Name: "order_", Type: gpkg.Integer}},
	}
	line := geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1})
	require.NoError(t, gpkg.Write(ctx, path, layer, []gpkg.Feature{
		{Geometry: line, Values: []any{int64(5001), int64(2)}},
		{Geometry: line, Values: []any{int64(5002), nil}},
	}))

	orders, err := LoadStreamOrders(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StreamOrders{"5001": 2}, orders)
}

func TestFilterNilKeepsAll(t *testing.T) {
	var orders StreamOrders
	assert.Equal(t, []string{"1", "2"}, orders.Filter([]string{"1", "2"}, 5))
}

func TestLoadStreamOrdersUnsupported(t *testing.T) {
	_, err := LoadStreamOrders(context.Background(), "flows.shp")
	assert.Error(t, err)
}
