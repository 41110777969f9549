package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/transit-dispatch/internal/directory"
	"github.com/example/transit-dispatch/internal/fleet"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/positions"
)

func testSearcher(limit int) (*Searcher, *positions.MemoryStore, *directory.MemoryDirectory, *fleet.StaticClassifier) {
	store := positions.NewMemoryStore(5 * time.Minute)
	dir := directory.NewMemoryDirectory()
	cls := fleet.NewStaticClassifier(models.ClassEconomy, models.ClassVan)
	return &Searcher{
		Positions: store,
		Fleet:     cls,
		Directory: dir,
		Window:    5 * time.Minute,
		Limit:     limit,
	}, store, dir, cls
}

func record(store *positions.MemoryStore, driver string, lat, lon float64, at time.Time) {
	store.Record(context.Background(), models.PositionSample{
		DriverID:   driver,
		Loc:        models.Coord{Lat: lat, Lon: lon},
		Class:      models.ClassEconomy,
		ObservedAt: at,
	})
}

func TestResolveClasses(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := testSearcher(20)

	all, err := s.ResolveClasses(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both active classes, got %v", all)
	}

	econ := models.ClassEconomy
	one, _ := s.ResolveClasses(ctx, &econ)
	if len(one) != 1 || !one[econ] {
		t.Fatalf("expected just economy, got %v", one)
	}

	premium := models.ClassPremium
	none, _ := s.ResolveClasses(ctx, &premium)
	if len(none) != 0 {
		t.Fatalf("inactive class must resolve empty, got %v", none)
	}
}

func TestSearchRanksByDistance(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, store, dir, _ := testSearcher(20)

	record(store, "far", 1.05, 1.05, now)
	record(store, "near", 1.001, 1.001, now)
	dir.Login("far", models.ClassEconomy)
	dir.Login("near", models.ClassEconomy)

	got, err := s.Search(ctx, models.Coord{Lat: 1, Lon: 1}, 10, map[models.VehicleClass]bool{models.ClassEconomy: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].DriverID != "near" || got[1].DriverID != "far" {
		t.Fatalf("ranking wrong: %+v", got)
	}
}

func TestSearchTruncatesBeforeFiltering(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, store, dir, _ := testSearcher(3)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("d%d", i)
		record(store, id, 1+float64(i)*0.001, 1, now)
		dir.Login(id, models.ClassEconomy)
	}

	got, err := s.Search(ctx, models.Coord{Lat: 1, Lon: 1}, 10, map[models.VehicleClass]bool{models.ClassEconomy: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("limit not applied, got %d candidates", len(got))
	}
}

func TestSearchFiltersDirectoryState(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, store, dir, _ := testSearcher(20)

	record(store, "free", 1, 1, now)
	record(store, "busy", 1, 1, now)
	record(store, "wrongclass", 1, 1, now)
	record(store, "loggedout", 1, 1, now)

	dir.Login("free", models.ClassEconomy)
	dir.Login("busy", models.ClassEconomy)
	dir.MarkOccupied(ctx, "busy", true)
	dir.Login("wrongclass", models.ClassVan)

	got, err := s.Search(ctx, models.Coord{Lat: 1, Lon: 1}, 5, map[models.VehicleClass]bool{models.ClassEconomy: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "free" {
		t.Fatalf("filter wrong: %+v", got)
	}
	if got[0].Class != models.ClassEconomy {
		t.Fatalf("class = %s", got[0].Class)
	}
}

func TestSearchEmptyClassesShortCircuits(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, store, dir, _ := testSearcher(20)
	record(store, "d1", 1, 1, now)
	dir.Login("d1", models.ClassEconomy)

	got, err := s.Search(ctx, models.Coord{Lat: 1, Lon: 1}, 5, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("no resolvable class must mean no candidates, got %+v", got)
	}
}
