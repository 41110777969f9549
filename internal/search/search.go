package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/transit-dispatch/internal/directory"
	"github.com/example/transit-dispatch/internal/fleet"
	"github.com/example/transit-dispatch/internal/geo"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/positions"
)

// Searcher turns a pickup point, radius and vehicle class into a
// ranked, filtered candidate list.
type Searcher struct {
	Positions positions.Store
	Fleet     fleet.Classifier
	Directory directory.Directory

	// Window is the trailing sample window; fixes older than this are
	// invisible to matching.
	Window time.Duration
	// Limit truncates the ranked list before the directory filter.
	Limit int
}

// ResolveClasses maps the rider's request onto the currently active
// classes. A specific request for an inactive class resolves to the
// empty set; no request means any active class. An empty result is a
// valid outcome, not an error.
func (s *Searcher) ResolveClasses(ctx context.Context, requested *models.VehicleClass) (map[models.VehicleClass]bool, error) {
	active, err := s.Fleet.ActiveClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("active classes: %w", err)
	}
	if requested == nil {
		return active, nil
	}
	if active[*requested] {
		return map[models.VehicleClass]bool{*requested: true}, nil
	}
	return map[models.VehicleClass]bool{}, nil
}

// Search returns drivers near pickup ranked by planar degree-space
// distance to their windowed averaged position. Ranking is deliberately
// not Haversine: order is what matters, not absolute distance.
func (s *Searcher) Search(ctx context.Context, pickup models.Coord, radiusKm float64, classes map[models.VehicleClass]bool, now time.Time) ([]models.Candidate, error) {
	if len(classes) == 0 {
		return nil, nil
	}

	box := geo.BoxAround(pickup, radiusKm)
	since := now.Add(-s.Window)
	avgs, err := s.Positions.AveragedNear(ctx, box, since)
	if err != nil {
		return nil, fmt.Errorf("position query: %w", err)
	}

	sort.Slice(avgs, func(i, j int) bool {
		return geo.PlanarDistance(pickup, avgs[i].Loc) < geo.PlanarDistance(pickup, avgs[j].Loc)
	})
	if s.Limit > 0 && len(avgs) > s.Limit {
		avgs = avgs[:s.Limit]
	}

	out := make([]models.Candidate, 0, len(avgs))
	for _, a := range avgs {
		sessionClass, err := s.Directory.SessionClass(ctx, a.DriverID)
		if err != nil {
			return nil, fmt.Errorf("session class for %s: %w", a.DriverID, err)
		}
		if sessionClass == nil || !classes[*sessionClass] {
			continue
		}
		available, err := s.Directory.IsAvailable(ctx, a.DriverID)
		if err != nil {
			return nil, fmt.Errorf("availability for %s: %w", a.DriverID, err)
		}
		if !available {
			continue
		}
		out = append(out, models.Candidate{DriverID: a.DriverID, Class: *sessionClass, Loc: a.Loc})
	}
	return out, nil
}
