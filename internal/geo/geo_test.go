package geo

import (
    "math"
    "testing"

    "github.com/example/transit-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
    d := Haversine(0, 0, 0, 0)
    if d != 0 {
        t.Fatalf("expected 0, got %f", d)
    }
}

func TestBoxAroundContainsCenter(t *testing.T) {
    c := models.Coord{Lat: 48.85, Lon: 2.35}
    b := BoxAround(c, 2)
    if !b.Contains(c) {
        t.Fatalf("box %+v does not contain its own center", b)
    }
    if b.Contains(models.Coord{Lat: 48.85, Lon: 2.55}) {
        t.Fatalf("point ~15km east should be outside a 2km box")
    }
}

func TestBoxAroundLonWiderAtHighLatitude(t *testing.T) {
    eq := BoxAround(models.Coord{Lat: 0, Lon: 0}, 5)
    north := BoxAround(models.Coord{Lat: 60, Lon: 0}, 5)
    if (north.MaxLon - north.MinLon) <= (eq.MaxLon - eq.MinLon) {
        t.Fatalf("longitude span must grow with latitude: eq=%f north=%f",
            eq.MaxLon-eq.MinLon, north.MaxLon-north.MinLon)
    }
}

func TestPlanarDistanceOrdering(t *testing.T) {
    pickup := models.Coord{Lat: 1, Lon: 1}
    near := models.Coord{Lat: 1.01, Lon: 1}
    far := models.Coord{Lat: 1.2, Lon: 1.2}
    if PlanarDistance(pickup, near) >= PlanarDistance(pickup, far) {
        t.Fatal("near point must rank before far point")
    }
    if d := PlanarDistance(pickup, pickup); d != 0 {
        t.Fatalf("self distance = %f", d)
    }
    want := math.Sqrt(2) * 0.1
    if got := PlanarDistance(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0.1, Lon: 0.1}); math.Abs(got-want) > 1e-12 {
        t.Fatalf("got %f want %f", got, want)
    }
}
