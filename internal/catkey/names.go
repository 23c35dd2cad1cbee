package catkey

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	extentSuffix    = "_extent"
	dissolvedSuffix = "_extent_dissolved"
)

// ExtentName is the mosaicked extent raster of one gauge product.
func ExtentName(lid string, k Key) string {
	return lid + "_" + k.String() + extentSuffix + ".tif"
}

// BranchExtentName is the extent raster of one HAND branch.
func BranchExtentName(lid string, k Key, huc, branch string) string {
	return lid + "_" + k.String() + extentSuffix + "_" + huc + "_" + branch + ".tif"
}

// DissolvedName is the per-product dissolved GeoPackage.
func DissolvedName(huc, lid string, k Key) string {
	return huc + "_" + lid + "_" + k.String() + dissolvedSuffix + ".gpkg"
}

// ParseExtentName splits "{lid}_{key}_extent.tif" into its parts.
func ParseExtentName(name string) (lid string, k Key, err error) {
	base := filepath.Base(name)
	stem, ok := strings.CutSuffix(base, extentSuffix+".tif")
	if !ok {
		return "", Key{}, eris.Wrapf(ErrInvalidKey, "not an extent raster: %q", base)
	}
	lid, rest, ok := strings.Cut(stem, "_")
	if !ok || len(lid) != 5 {
		return "", Key{}, eris.Wrapf(ErrInvalidKey, "bad lid in %q", base)
	}
	k, err = Parse(rest)
	if err != nil {
		return "", Key{}, err
	}
	return lid, k, nil
}

// ParseDissolvedName splits "{huc}_{lid}_{key}_extent_dissolved.gpkg".
func ParseDissolvedName(name string) (huc, lid string, k Key, err error) {
	base := filepath.Base(name)
	stem, ok := strings.CutSuffix(base, dissolvedSuffix+".gpkg")
	if !ok {
		return "", "", Key{}, eris.Wrapf(ErrInvalidKey, "not a dissolved library file: %q", base)
	}
	parts := strings.SplitN(stem, "_", 3)
	if len(parts) != 3 || !isHUC(parts[0]) || len(parts[1]) != 5 {
		return "", "", Key{}, eris.Wrapf(ErrInvalidKey, "bad huc or lid in %q", base)
	}
	k, err = Parse(parts[2])
	if err != nil {
		return "", "", Key{}, err
	}
	return parts[0], parts[1], k, nil
}

// LIDFromLibraryName returns the gauge of any "{huc}_{lid}_*.gpkg" name, the
// looser form used when reconciling statuses.
func LIDFromLibraryName(name string) (string, bool) {
	base := filepath.Base(name)
	if filepath.Ext(base) != ".gpkg" {
		return "", false
	}
	parts := strings.Split(strings.TrimSuffix(base, ".gpkg"), "_")
	if len(parts) < 3 || !isHUC(parts[0]) || len(parts[1]) != 5 {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}

func isHUC(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
