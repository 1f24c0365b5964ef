package snow

import "math"

// ElevationFunc returns the ground elevation (meters) at (lat, lon).
// ok is false when no elevation data is available for the point.
type ElevationFunc func(lat, lon float64) (elevationM float64, ok bool)

// GridTerrainProvider implements TerrainProvider by sampling Elevation
// over a coarse grid around the query point and returning the highest
// value found, a translation of the radius-sampling approach used for
// the station-altitude "nearby terrain" lookup: no local terrain
// dataset is bundled, so callers supply Elevation (e.g. backed by the
// geocoding collaborator's elevation endpoint).
type GridTerrainProvider struct {
	Elevation ElevationFunc
	RadiusKM  float64 // default 50 when zero
}

// MaxNearbyTerrainM returns the highest sampled elevation within
// RadiusKM of (lat, lon), or ok=false if no sample produced data.
func (g GridTerrainProvider) MaxNearbyTerrainM(lat, lon float64) (float64, bool) {
	if g.Elevation == nil {
		return 0, false
	}
	radiusKM := g.RadiusKM
	if radiusKM <= 0 {
		radiusKM = 50
	}

	max := math.Inf(-1)
	found := false
	for _, p := range pointsInRadius(lat, lon, radiusKM) {
		elevation, ok := g.Elevation(p[0], p[1])
		if !ok {
			continue
		}
		if elevation > max {
			max = elevation
		}
		found = true
	}
	if !found {
		return 0, false
	}
	return max, true
}

// pointsInRadius returns a coarse 5x5 sample grid spanning radiusKM
// around (lat, lon), clipped to valid latitude/longitude bounds.
func pointsInRadius(lat, lon, radiusKM float64) [][2]float64 {
	const latPerKM = 1.0 / 111.0
	cosLat := math.Cos(lat * math.Pi / 180.0)
	lonPerKM := latPerKM
	if cosLat != 0 {
		lonPerKM = 1.0 / (111.0 * cosLat)
	}
	latStep := radiusKM * latPerKM / 2
	lonStep := radiusKM * lonPerKM / 2

	var points [][2]float64
	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			checkLat := lat + float64(i)*latStep
			checkLon := lon + float64(j)*lonStep
			if checkLat >= -90 && checkLat <= 90 && checkLon >= -180 && checkLon <= 180 {
				points = append(points, [2]float64{checkLat, checkLon})
			}
		}
	}
	return points
}
