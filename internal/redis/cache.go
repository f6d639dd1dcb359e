package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	globalGenKey = "avail:gen:global"
	// generation keys outlive any entry written under them
	minGenTTL = time.Hour
)

// AvailabilityCache keeps computed day slots under keys that embed three
// generation counters (global, clinic, doctor-day). Bumping a counter orphans
// every entry written under the old value; orphans expire with their TTL.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ availability.Cache = (*AvailabilityCache)(nil)

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func clinicGenKey(clinicID uuid.UUID) string {
	return fmt.Sprintf("avail:gen:clinic:%s", clinicID)
}

func dayGenKey(doctorID uuid.UUID, date availability.Date) string {
	return fmt.Sprintf("avail:gen:day:%s:%s", doctorID, date)
}

func (c *AvailabilityCache) Get(ctx context.Context, clinicID, doctorID uuid.UUID, date availability.Date) ([]availability.Slot, string, bool, error) {
	gens, err := c.client.MGet(ctx, globalGenKey, clinicGenKey(clinicID), dayGenKey(doctorID, date)).Result()
	if err != nil {
		return nil, "", false, fmt.Errorf("read cache generations: %w", err)
	}
	token := fmt.Sprintf("avail:slots:%s:%s:%s.%s.%s", doctorID, date, genValue(gens[0]), genValue(gens[1]), genValue(gens[2]))

	raw, err := c.client.Get(ctx, token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, token, false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("read cached slots: %w", err)
	}

	var slots []availability.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		// unreadable entry; treat as a miss and let Put overwrite it
		return nil, token, false, nil
	}
	return slots, token, true, nil
}

func (c *AvailabilityCache) Put(ctx context.Context, token string, slots []availability.Slot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	if err := c.client.Set(ctx, token, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached slots: %w", err)
	}
	return nil
}

// InvalidateDay is called after every reserve and cancel.
func (c *AvailabilityCache) InvalidateDay(ctx context.Context, doctorID uuid.UUID, date availability.Date) error {
	return c.bump(ctx, dayGenKey(doctorID, date), c.genTTL())
}

// InvalidateClinic is called after configuration writes. uuid.Nil bumps the global generation.
func (c *AvailabilityCache) InvalidateClinic(ctx context.Context, clinicID uuid.UUID) error {
	if clinicID == uuid.Nil {
		return c.bump(ctx, globalGenKey, 0)
	}
	return c.bump(ctx, clinicGenKey(clinicID), 0)
}

var bumpScript = redis.NewScript(`
local v = redis.call("INCR", KEYS[1])
if tonumber(ARGV[1]) > 0 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return v
`)

func (c *AvailabilityCache) bump(ctx context.Context, key string, ttl time.Duration) error {
	if _, err := bumpScript.Run(ctx, c.client, []string{key}, int64(ttl/time.Second)).Result(); err != nil {
		return fmt.Errorf("bump %s: %w", key, err)
	}
	return nil
}

func (c *AvailabilityCache) genTTL() time.Duration {
	if 2*c.ttl > minGenTTL {
		return 2 * c.ttl
	}
	return minGenTTL
}

func genValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "0"
}
