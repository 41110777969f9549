package positions

import (
	"context"
	"sync"
	"time"

	"github.com/example/transit-dispatch/internal/geo"
	"github.com/example/transit-dispatch/internal/models"
)

// Store holds recent location samples per driver and answers windowed,
// spatially-bounded averaged-position queries.
type Store interface {
	Record(ctx context.Context, s models.PositionSample) error
	// AveragedNear returns, for every driver with at least one sample
	// inside box observed at or after since, the centroid of that
	// driver's windowed samples plus the most recent class and timestamp.
	AveragedNear(ctx context.Context, box geo.BoundingBox, since time.Time) ([]models.AveragedPosition, error)
}

// MemoryStore is the in-process Store used by tests and no-Redis runs.
type MemoryStore struct {
	mu        sync.RWMutex
	samples   map[string][]models.PositionSample
	retention time.Duration
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &MemoryStore{
		samples:   make(map[string][]models.PositionSample),
		retention: retention,
	}
}

func (m *MemoryStore) Record(_ context.Context, s models.PositionSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := s.ObservedAt.Add(-m.retention)
	kept := m.samples[s.DriverID][:0]
	for _, old := range m.samples[s.DriverID] {
		if old.ObservedAt.After(cutoff) {
			kept = append(kept, old)
		}
	}
	m.samples[s.DriverID] = append(kept, s)
	return nil
}

func (m *MemoryStore) AveragedNear(_ context.Context, box geo.BoundingBox, since time.Time) ([]models.AveragedPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AveragedPosition
	for driverID, all := range m.samples {
		var windowed []models.PositionSample
		inBox := false
		for _, s := range all {
			if s.ObservedAt.Before(since) {
				continue
			}
			windowed = append(windowed, s)
			if box.Contains(s.Loc) {
				inBox = true
			}
		}
		if !inBox || len(windowed) == 0 {
			continue
		}
		out = append(out, average(driverID, windowed))
	}
	return out, nil
}

// average computes the centroid of the windowed samples; class and
// last-seen come from the most recent sample.
func average(driverID string, windowed []models.PositionSample) models.AveragedPosition {
	var sumLat, sumLon float64
	latest := windowed[0]
	for _, s := range windowed {
		sumLat += s.Loc.Lat
		sumLon += s.Loc.Lon
		if s.ObservedAt.After(latest.ObservedAt) {
			latest = s
		}
	}
	n := float64(len(windowed))
	return models.AveragedPosition{
		DriverID: driverID,
		Loc:      models.Coord{Lat: sumLat / n, Lon: sumLon / n},
		Class:    latest.Class,
		LastSeen: latest.ObservedAt,
	}
}
