package geo

import (
	"math"

	"github.com/example/transit-dispatch/internal/models"
)

// kmPerDegreeLat is close enough at city scale; matching never needs
// geodesic precision.
const kmPerDegreeLat = 111.32

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b BoundingBox) Contains(c models.Coord) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// BoxAround converts a radius in km into a bounding box using an
// equirectangular approximation: longitude degrees shrink by
// cos(latitude). Adequate for city-scale search, not geodesically exact.
func BoxAround(center models.Coord, radiusKm float64) BoundingBox {
	dLat := radiusKm / kmPerDegreeLat
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6 // degenerate near the poles; box just gets wide
	}
	dLon := radiusKm / (kmPerDegreeLat * cosLat)
	return BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
}

// PlanarDistance is the Euclidean distance in degree-space. It is NOT a
// true distance; candidate ranking only needs a consistent order, and
// this deliberately preserves the original matching behavior. Do not
// swap in Haversine here.
func PlanarDistance(a, b models.Coord) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// Haversine distance in meters. Used for ETA estimates in notifications,
// never for candidate ranking.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
