package hranalytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "hr_analytics:version"
	// BumpChannel carries cache version bumps between instances.
	BumpChannel = "hr_analytics.bump"
)

// Cache wraps Redis based caching with versioning controls.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("hranalytics: cache loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	if err := c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}

// ListenForInvalidation subscribes to version bumps and calls onBump for each
// one until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("hranalytics: subscribe %s: %w", BumpChannel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}

func departmentToken(departmentID *int64) string {
	if departmentID == nil {
		return "all"
	}
	return strconv.FormatInt(*departmentID, 10)
}

func keyHeadcount(departmentID *int64) string {
	return strings.Join([]string{"hr_analytics", "headcount", departmentToken(departmentID)}, ":")
}

func keyWages(departmentID *int64) string {
	return strings.Join([]string{"hr_analytics", "wages", departmentToken(departmentID)}, ":")
}

func keyKPI(departmentID *int64, day time.Time) string {
	return strings.Join([]string{"hr_analytics", "kpi", departmentToken(departmentID), day.Format(dateLayout)}, ":")
}

func keyAttendance(f Filters) string {
	return strings.Join([]string{"hr_analytics", "attendance", departmentToken(f.DepartmentID), FormatDate(f.StartDate), FormatDate(f.EndDate)}, ":")
}

func keySalary(departmentID *int64) string {
	return strings.Join([]string{"hr_analytics", "salary", departmentToken(departmentID)}, ":")
}

func keyLeaves(f Filters) string {
	return strings.Join([]string{"hr_analytics", "leaves", departmentToken(f.DepartmentID), FormatDate(f.StartDate), FormatDate(f.EndDate)}, ":")
}
