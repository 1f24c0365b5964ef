package snow

import "testing"

func TestGridTerrainProvider_MaxNearbyTerrainM(t *testing.T) {
	g := GridTerrainProvider{
		Elevation: func(lat, lon float64) (float64, bool) {
			// fabricate a ridge to the north of the query point
			if lat > 45.0 {
				return 2000, true
			}
			return 500, true
		},
		RadiusKM: 50,
	}

	maxM, ok := g.MaxNearbyTerrainM(45.0, 10.0)
	if !ok {
		t.Fatal("expected terrain data to be found")
	}
	if maxM != 2000 {
		t.Errorf("got max terrain %v, want 2000 (the sampled ridge)", maxM)
	}
}

func TestGridTerrainProvider_NoElevationFunc(t *testing.T) {
	g := GridTerrainProvider{}
	if _, ok := g.MaxNearbyTerrainM(0, 0); ok {
		t.Error("expected ok=false when Elevation is nil")
	}
}

func TestPointsInRadius_StaysWithinBounds(t *testing.T) {
	points := pointsInRadius(89.5, 179.5, 100)
	for _, p := range points {
		if p[0] < -90 || p[0] > 90 || p[1] < -180 || p[1] > 180 {
			t.Errorf("point %v out of valid lat/lon bounds", p)
		}
	}
}
