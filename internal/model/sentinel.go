package model

import "math"

// Sentinel values shared by the inundation pipeline. They are defined here
// and nowhere else.
const (
	// NotALake marks hydro-table rows that do not belong to a lake. Rows with
	// any other LakeID are excluded from flow-based inundation.
	NotALake = -999

	// AbsentStage marks a category with no usable threshold in a stage table.
	AbsentStage = -1.0

	// DryREM is the lower bound of wet REM values. Pixels below it are dry.
	DryREM = 0.0

	// DefaultCatchmentsNoData is the catchments domain boundary used when the
	// raster does not declare its own nodata value.
	DefaultCatchmentsNoData int32 = 0

	// ExtentNoData is the nodata value of every extent raster.
	ExtentNoData = 0

	// MissingStageMM is the miss value of the HydroID stage table.
	MissingStageMM int32 = math.MinInt32
)

// Unit conversions.
const (
	FeetToMeters = 0.3048
	MetersToFeet = 3.28084
	CFSToCMS     = 0.0283168
)
