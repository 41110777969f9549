package directory

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/transit-dispatch/internal/models"
)

// Directory exposes driver session state to matching: whether the
// driver is logged in with a vehicle class, and whether they are free
// to take a transit.
type Directory interface {
	IsAvailable(ctx context.Context, driverID string) (bool, error)
	MarkOccupied(ctx context.Context, driverID string, occupied bool) error
	// SessionClass returns the vehicle class of the driver's current
	// session, or nil when the driver is not logged in.
	SessionClass(ctx context.Context, driverID string) (*models.VehicleClass, error)
}

type session struct {
	class    models.VehicleClass
	occupied bool
}

// MemoryDirectory is the in-process Directory for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{sessions: make(map[string]*session)}
}

// Login opens a driver session with the given vehicle class.
func (d *MemoryDirectory) Login(driverID string, class models.VehicleClass) {
	d.mu.Lock()
	d.sessions[driverID] = &session{class: class}
	d.mu.Unlock()
}

func (d *MemoryDirectory) Logout(driverID string) {
	d.mu.Lock()
	delete(d.sessions, driverID)
	d.mu.Unlock()
}

func (d *MemoryDirectory) IsAvailable(_ context.Context, driverID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[driverID]
	return ok && !s.occupied, nil
}

func (d *MemoryDirectory) MarkOccupied(_ context.Context, driverID string, occupied bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[driverID]; ok {
		s.occupied = occupied
	}
	return nil
}

func (d *MemoryDirectory) SessionClass(_ context.Context, driverID string) (*models.VehicleClass, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[driverID]
	if !ok {
		return nil, nil
	}
	c := s.class
	return &c, nil
}

// RedisDirectory stores sessions as driver:session:<id> hashes, the
// same key style the position store uses for driver metadata.
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(addr, password string) *RedisDirectory {
	return &RedisDirectory{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func sessionKey(driverID string) string { return "driver:session:" + driverID }

func (d *RedisDirectory) Login(ctx context.Context, driverID string, class models.VehicleClass) error {
	return d.client.HSet(ctx, sessionKey(driverID), map[string]interface{}{
		"class":    string(class),
		"occupied": "false",
	}).Err()
}

func (d *RedisDirectory) Logout(ctx context.Context, driverID string) error {
	return d.client.Del(ctx, sessionKey(driverID)).Err()
}

func (d *RedisDirectory) IsAvailable(ctx context.Context, driverID string) (bool, error) {
	m, err := d.client.HGetAll(ctx, sessionKey(driverID)).Result()
	if err != nil {
		return false, err
	}
	if len(m) == 0 {
		return false, nil
	}
	occupied, _ := strconv.ParseBool(m["occupied"])
	return !occupied, nil
}

func (d *RedisDirectory) MarkOccupied(ctx context.Context, driverID string, occupied bool) error {
	return d.client.HSet(ctx, sessionKey(driverID), "occupied", strconv.FormatBool(occupied)).Err()
}

func (d *RedisDirectory) SessionClass(ctx context.Context, driverID string) (*models.VehicleClass, error) {
	v, err := d.client.HGet(ctx, sessionKey(driverID), "class").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := models.VehicleClass(v)
	return &c, nil
}
