package fleet

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/transit-dispatch/internal/models"
)

// Classifier exposes the set of vehicle classes currently activatable.
// Car-type activation bookkeeping itself lives elsewhere; matching only
// ever reads the active set.
type Classifier interface {
	ActiveClasses(ctx context.Context) (map[models.VehicleClass]bool, error)
}

// StaticClassifier is an in-memory Classifier for tests and local runs.
type StaticClassifier struct {
	mu      sync.RWMutex
	classes map[models.VehicleClass]bool
}

func NewStaticClassifier(classes ...models.VehicleClass) *StaticClassifier {
	c := &StaticClassifier{classes: make(map[models.VehicleClass]bool)}
	for _, cl := range classes {
		c.classes[cl] = true
	}
	return c
}

func (c *StaticClassifier) Activate(cl models.VehicleClass) {
	c.mu.Lock()
	c.classes[cl] = true
	c.mu.Unlock()
}

func (c *StaticClassifier) Deactivate(cl models.VehicleClass) {
	c.mu.Lock()
	delete(c.classes, cl)
	c.mu.Unlock()
}

func (c *StaticClassifier) ActiveClasses(context.Context) (map[models.VehicleClass]bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[models.VehicleClass]bool, len(c.classes))
	for cl := range c.classes {
		out[cl] = true
	}
	return out, nil
}

const activeClassesKey = "fleet:active_classes"

// RedisClassifier reads the active set maintained by the fleet admin
// surface out of a Redis set.
type RedisClassifier struct {
	client *redis.Client
}

func NewRedisClassifier(addr, password string) *RedisClassifier {
	return &RedisClassifier{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (c *RedisClassifier) ActiveClasses(ctx context.Context) (map[models.VehicleClass]bool, error) {
	members, err := c.client.SMembers(ctx, activeClassesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[models.VehicleClass]bool, len(members))
	for _, m := range members {
		out[models.VehicleClass(m)] = true
	}
	return out, nil
}
