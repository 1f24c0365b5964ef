// Package snow estimates the snow level (the altitude at which falling
// precipitation transitions to snow) from surface observations and
// either a freezing-level height or a pressure-level profile (spec.md
// §4.3). The core algorithm is a wet-bulb-zero diagnostic: compute
// wet-bulb temperature through the column and find where it crosses a
// target threshold.
package snow

import "math"

// Thermodynamic constants, standard values used throughout.
const (
	gasConstantDryAir    = 287.05 // Rd, J/kg/K
	gasConstantVapor     = 461.5  // Rv, J/kg/K
	specificHeatDryAir   = 1004.0 // cpd, J/kg/K
	specificHeatVapor    = 1850.0 // cpv, J/kg/K
	epsilon              = gasConstantDryAir / gasConstantVapor
	wetBulbTargetC       = 0.5
	maxSnowLevelAboveMSL = 3000.0 // m above station; results beyond this are discarded
)

// freezingCodes are WMO weather codes already describing a
// freezing/snow phenomenon; snow-level diagnosis is redundant for them.
var freezingCodes = map[int]bool{
	56: true, 57: true, 66: true, 67: true,
	71: true, 73: true, 75: true, 77: true,
	85: true, 86: true,
}

// ShouldCheck reports whether conditions warrant a snow-level
// calculation: nonzero precipitation, a weather code that isn't
// already a freezing/snow type, and temperature under 15°C.
func ShouldCheck(precipitationMM float64, weatherCode int, temperatureC float64) bool {
	return precipitationMM > 0 && !freezingCodes[weatherCode] && temperatureC < 15.0
}

// latentHeatVaporization returns Lv (J/kg) with the standard linear
// temperature dependence.
func latentHeatVaporization(tempK float64) float64 {
	return 2.501e6 - 2361.0*(tempK-273.15)
}

// saturationVaporPressure returns esat (Pa) over liquid water via the
// August-Roche-Magnus approximation.
func saturationVaporPressure(tempC float64) float64 {
	return 611.2 * math.Exp((17.67*tempC)/(tempC+243.5))
}

// dewpointFromVaporPressure inverts the Magnus formula to recover
// dewpoint (°C) from vapor pressure (Pa).
func dewpointFromVaporPressure(vaporPressurePa float64) float64 {
	hPa := vaporPressurePa / 100.0
	lnRatio := math.Log(hPa / 6.112)
	return (243.5 * lnRatio) / (17.67 - lnRatio)
}

// saturationMixingRatio returns the saturation mixing ratio (kg/kg) at
// pressure p (Pa) and temperature T (°C).
func saturationMixingRatio(pressurePa, tempC float64) float64 {
	e := saturationVaporPressure(tempC)
	return epsilon * e / (pressurePa - e)
}

// mixingRatioFromRH returns mixing ratio r (kg/kg) from temperature,
// relative humidity (%), and pressure (Pa).
func mixingRatioFromRH(pressurePa, tempC, rhPct float64) float64 {
	e := (rhPct / 100.0) * saturationVaporPressure(tempC)
	return epsilon * e / (pressurePa - e)
}

// RelativeHumidity computes RH% from temperature and dewpoint (°C),
// via the August-Roche-Magnus approximation, clamped to [0, 100].
func RelativeHumidity(tempC, dewpointC float64) float64 {
	e := saturationVaporPressure(dewpointC)
	es := saturationVaporPressure(tempC)
	rh := 100.0 * e / es
	return math.Max(0.0, math.Min(100.0, rh))
}

// moistEnthalpyPerKgDryAir returns moist static enthalpy per kg of dry
// air, for the Davies-Jones-style wet-bulb bisection.
func moistEnthalpyPerKgDryAir(tempK, mixingRatio float64) float64 {
	return specificHeatDryAir*tempK + mixingRatio*(specificHeatVapor*tempK+latentHeatVaporization(tempK))
}

// WetBulb computes wet-bulb temperature T_w (°C) via enthalpy balance,
// bisecting between the dewpoint and dry-bulb temperature.
func WetBulb(tempC, rhPct, pressurePa float64) float64 {
	if math.Abs(rhPct-100.0) < 1e-6 {
		return tempC
	}

	tempK := tempC + 273.15
	r := mixingRatioFromRH(pressurePa, tempC, rhPct)

	e := (rhPct / 100.0) * saturationVaporPressure(tempC)
	dewpointC := dewpointFromVaporPressure(e)

	loK := dewpointC + 273.15
	hiK := tempC + 273.15
	hParcel := moistEnthalpyPerKgDryAir(tempK, r)

	f := func(twK float64) float64 {
		rsw := saturationMixingRatio(pressurePa, twK-273.15)
		return hParcel - moistEnthalpyPerKgDryAir(twK, rsw)
	}

	if f(loK) < 0 {
		loK = math.Max(180.0, loK-0.5)
	}
	if f(hiK) > 0 {
		hiK += 0.5
	}

	const tol = 1e-3
	for i := 0; i < 60; i++ {
		midK := 0.5 * (loK + hiK)
		fMid := f(midK)
		if math.Abs(fMid) < 1e-6 || (hiK-loK) < tol {
			return midK - 273.15
		}
		if fMid > 0 {
			loK = midK
		} else {
			hiK = midK
		}
	}
	return 0.5*(loK+hiK) - 273.15
}

// PrecipAdjustment is the discrete downward adjustment (meters)
// applied to a raw snow-level estimate for precipitation intensity,
// per the table in spec.md §4.3 (used everywhere per the resolved Open
// Question in the design notes, including the freezing-level branch).
func PrecipAdjustment(precipRateMMPerHour float64) float64 {
	switch {
	case precipRateMMPerHour >= 20.0:
		return 300.0
	case precipRateMMPerHour >= 10.0:
		return 200.0
	case precipRateMMPerHour >= 5.0:
		return 100.0
	default:
		return 0.0
	}
}

// Profile is a pressure-level vertical profile at a single hour:
// parallel arrays of pressure (hPa), temperature (°C), relative
// humidity (%), and geopotential height (m).
type Profile struct {
	PressuresHPa []float64
	TempsC       []float64
	RHsPct       []float64
	GeopHeightsM []float64
}

// Valid reports whether every array in the profile has the same,
// nonzero length.
func (p Profile) Valid() bool {
	n := len(p.PressuresHPa)
	if n == 0 {
		return false
	}
	return len(p.TempsC) == n && len(p.RHsPct) == n && len(p.GeopHeightsM) == n
}

// TerrainProvider supplies the highest nearby terrain elevation for a
// coordinate, used to reject snow-level estimates above ridge lines
// (spec.md §4.3 step 5). Implementations may consult an H3-indexed
// elevation dataset; NoTerrain disables this rejection.
type TerrainProvider interface {
	MaxNearbyTerrainM(lat, lon float64) (float64, bool)
}

// NoTerrain is a TerrainProvider that never supplies terrain data,
// disabling the terrain-based rejection entirely.
type NoTerrain struct{}

// MaxNearbyTerrainM always reports no data.
func (NoTerrain) MaxNearbyTerrainM(lat, lon float64) (float64, bool) { return 0, false }

// EstimateFromProfile estimates snow-level (m above MSL) from a
// pressure-level profile, per spec.md §4.3 step 4: compute wet-bulb at
// the surface and at each level, then linearly interpolate the height
// at which wet-bulb crosses wetBulbTargetC.
func EstimateFromProfile(stationElevationM, stationPressurePa, t2mC, td2mC float64, profile Profile, precipRateMMPerHour float64, applyPrecipAdjustment bool) (float64, bool) {
	if !profile.Valid() {
		return 0, false
	}

	rh2m := RelativeHumidity(t2mC, td2mC)
	surfaceTw := WetBulb(t2mC, rh2m, stationPressurePa)

	n := len(profile.PressuresHPa)
	heights := make([]float64, n+1)
	wetBulbs := make([]float64, n+1)
	heights[0] = stationElevationM
	wetBulbs[0] = surfaceTw
	for i := 0; i < n; i++ {
		heights[i+1] = profile.GeopHeightsM[i]
		wetBulbs[i+1] = WetBulb(profile.TempsC[i], profile.RHsPct[i], profile.PressuresHPa[i]*100.0)
	}

	sortByHeight(heights, wetBulbs)

	var snowLevel float64
	found := false
	if wetBulbs[0] <= 0.0 {
		snowLevel = heights[0]
		found = true
	} else {
		for i := 0; i < len(heights)-1; i++ {
			y0 := wetBulbs[i] - wetBulbTargetC
			y1 := wetBulbs[i+1] - wetBulbTargetC
			if y0 == 0.0 {
				snowLevel = heights[i]
				found = true
				break
			}
			if y0*y1 <= 0.0 {
				z0, z1 := heights[i], heights[i+1]
				snowLevel = z0 + (wetBulbTargetC-wetBulbs[i])*(z1-z0)/(wetBulbs[i+1]-wetBulbs[i])
				found = true
				break
			}
		}
	}
	if !found {
		return 0, false
	}

	if applyPrecipAdjustment {
		snowLevel = math.Max(stationElevationM, snowLevel-PrecipAdjustment(precipRateMMPerHour))
	}
	return snowLevel, true
}

// sortByHeight sorts the (height, wetBulb) pairs in ascending height
// order in place (simple insertion sort; profiles are a handful of
// standard levels).
func sortByHeight(heights, wetBulbs []float64) {
	for i := 1; i < len(heights); i++ {
		h, w := heights[i], wetBulbs[i]
		j := i - 1
		for j >= 0 && heights[j] > h {
			heights[j+1] = heights[j]
			wetBulbs[j+1] = wetBulbs[j]
			j--
		}
		heights[j+1] = h
		wetBulbs[j+1] = w
	}
}

// EstimateFromFreezingLevel estimates snow-level (m above MSL) from a
// freezing-level height, per spec.md §4.3 step 3: a lapse rate derived
// from (T - T_w)/(freezing_level - station_altitude), clamped to
// [0.001, 0.015] K/m and defaulting to 0.0065 when the two altitudes
// are within 10 m of each other. The discrete precipitation-intensity
// adjustment (spec.md §4.3) applies here too when requested, matching
// the pressure-profile branch.
func EstimateFromFreezingLevel(stationElevationM, stationPressurePa, t2mC, td2mC, freezingLevelM, precipRateMMPerHour float64, applyPrecipAdjustment bool) float64 {
	rh2m := RelativeHumidity(t2mC, td2mC)
	tw := WetBulb(t2mC, rh2m, stationPressurePa)

	const defaultLapseRate = 0.0065
	lapseRate := defaultLapseRate
	if math.Abs(freezingLevelM-stationElevationM) >= 10.0 {
		lapseRate = (t2mC - tw) / (freezingLevelM - stationElevationM)
		lapseRate = math.Max(0.001, math.Min(0.015, lapseRate))
	}

	snowLevel := (tw-1.0)/lapseRate + stationElevationM
	cap := freezingLevelM - 100.0
	snowLevel = math.Min(snowLevel, cap)

	if applyPrecipAdjustment {
		snowLevel = math.Max(stationElevationM, snowLevel-PrecipAdjustment(precipRateMMPerHour))
	}
	return snowLevel
}

// Filter applies the validity and terrain-based rejection rules from
// spec.md §4.3 step 5 to a raw snow-level estimate, returning (value,
// true) when it survives, or (0, false) when it should be discarded.
func Filter(snowLevelM, stationElevationM, lat, lon float64, terrain TerrainProvider) (float64, bool) {
	if math.IsNaN(snowLevelM) || math.IsInf(snowLevelM, 0) {
		return 0, false
	}
	if snowLevelM < stationElevationM || snowLevelM > stationElevationM+maxSnowLevelAboveMSL {
		return 0, false
	}
	if terrain != nil {
		if maxTerrain, ok := terrain.MaxNearbyTerrainM(lat, lon); ok {
			if snowLevelM > maxTerrain-300.0 {
				return 0, false
			}
		}
	}
	return snowLevelM, true
}

// Round rounds a snow level to the display granularity: 100 m for
// metric units, 500 ft for imperial (spec.md §4.3's "optional display
// rounding"). units should be "metric" or "us".
func Round(snowLevelM float64, units string) float64 {
	if units == "us" {
		feet := snowLevelM * 3.28084
		return math.Round(feet/500.0) * 500.0
	}
	return math.Round(snowLevelM/100.0) * 100.0
}
