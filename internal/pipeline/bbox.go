package pipeline

import (
	"math"

	"floodfactor/internal/types"
)

// metersPerDegree is the flat-earth approximation used to size the study area.
const metersPerDegree = 111000.0

// DefaultBBoxHalfMeters gives a study area of roughly 10 km x 10 km.
const DefaultBBoxHalfMeters = 5000.0

// BoundingBoxAround returns the box extending halfMeters from loc in each
// direction. The longitude half-width is scaled by cos(lat) so the box stays
// roughly square on the ground.
func BoundingBoxAround(loc types.Location, halfMeters float64) types.BoundingBox {
	halfLat := halfMeters / metersPerDegree
	halfLon := halfMeters / (metersPerDegree * math.Cos(loc.Lat*math.Pi/180))
	return types.BoundingBox{
		West:  loc.Lon - halfLon,
		South: loc.Lat - halfLat,
		East:  loc.Lon + halfLon,
		North: loc.Lat + halfLat,
	}
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// round2 is used for hydrologic quantities.
func round2(v float64) float64 { return round(v, 2) }

// round6 is used for coordinates.
func round6(v float64) float64 { return round(v, 6) }

func roundBBox(b types.BoundingBox) types.BoundingBox {
	return types.BoundingBox{
		West:  round6(b.West),
		South: round6(b.South),
		East:  round6(b.East),
		North: round6(b.North),
	}
}
