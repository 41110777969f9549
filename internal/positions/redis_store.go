package positions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/transit-dispatch/internal/geo"
	"github.com/example/transit-dispatch/internal/models"
)

// RedisStore keeps the latest fix per driver in a GEO key for the
// spatial prefilter and the raw windowed samples in per-driver sorted
// sets scored by unix nanos. Averaging happens client-side over the
// windowed members.
type RedisStore struct {
	client    *redis.Client
	geoKey    string
	retention time.Duration
}

func NewRedisStore(addr, password, geoKey string, retention time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &RedisStore{client: c, geoKey: geoKey, retention: retention}
}

// NewRedisStoreWithClient is used by the consumer binary which owns its
// own client lifecycle.
func NewRedisStoreWithClient(c *redis.Client, geoKey string, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &RedisStore{client: c, geoKey: geoKey, retention: retention}
}

func (r *RedisStore) Record(ctx context.Context, s models.PositionSample) error {
	score := float64(s.ObservedAt.UnixNano())
	member := encodeSample(s)

	pipe := r.client.Pipeline()
	pipe.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{Longitude: s.Loc.Lon, Latitude: s.Loc.Lat, Name: s.DriverID})
	key := sampleKey(s.DriverID)
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(s.ObservedAt.Add(-r.retention).UnixNano(), 10))
	pipe.Expire(ctx, key, 2*r.retention)
	_, err := pipe.Exec(ctx)
	return err
}

// AveragedNear prefilters by the driver's latest fix via GEOSEARCH over
// the box, then averages each hit's windowed samples. A driver whose
// stale latest fix sits inside the box is dropped by the window check.
func (r *RedisStore) AveragedNear(ctx context.Context, box geo.BoundingBox, since time.Time) ([]models.AveragedPosition, error) {
	centerLat := (box.MinLat + box.MaxLat) / 2
	centerLon := (box.MinLon + box.MaxLon) / 2
	heightKm := (box.MaxLat - box.MinLat) * 111.32
	widthKm := heightKm // GEOSEARCH box is metric; the lon span already encodes cos(lat)

	names, err := r.client.GeoSearch(ctx, r.geoKey, &redis.GeoSearchQuery{
		Longitude: centerLon,
		Latitude:  centerLat,
		BoxWidth:  widthKm,
		BoxHeight: heightKm,
		BoxUnit:   "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	var out []models.AveragedPosition
	for _, driverID := range names {
		members, err := r.client.ZRangeByScore(ctx, sampleKey(driverID), &redis.ZRangeBy{
			Min: strconv.FormatInt(since.UnixNano(), 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("samples for %s: %w", driverID, err)
		}
		windowed := make([]models.PositionSample, 0, len(members))
		for _, m := range members {
			s, ok := decodeSample(driverID, m)
			if !ok {
				continue
			}
			windowed = append(windowed, s)
		}
		if len(windowed) == 0 {
			continue
		}
		out = append(out, average(driverID, windowed))
	}
	return out, nil
}

func sampleKey(driverID string) string { return "driver:samples:" + driverID }

func encodeSample(s models.PositionSample) string {
	return fmt.Sprintf("%.7f|%.7f|%s|%d", s.Loc.Lat, s.Loc.Lon, s.Class, s.ObservedAt.UnixNano())
}

func decodeSample(driverID, member string) (models.PositionSample, bool) {
	parts := strings.SplitN(member, "|", 4)
	if len(parts) != 4 {
		return models.PositionSample{}, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	nanos, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return models.PositionSample{}, false
	}
	return models.PositionSample{
		DriverID:   driverID,
		Loc:        models.Coord{Lat: lat, Lon: lon},
		Class:      models.VehicleClass(parts[2]),
		ObservedAt: time.Unix(0, nanos),
	}, true
}
