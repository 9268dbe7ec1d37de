// Package cache keeps the latest surge record per zone and a bounded
// per-zone history in Redis.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/example/surge-dashboard/internal/models"
)

const (
	LatestKey     = "surge:latest"
	historyPrefix = "surge:history:"

	DefaultHistoryLimit = 500
)

func HistoryKey(zoneID string) string { return historyPrefix + zoneID }

// SnapshotCache stores records as JSON: the latest one per zone in a hash,
// history in a sorted set scored by unix milliseconds.
type SnapshotCache struct {
	client       redis.Cmdable
	HistoryLimit int64
}

func NewSnapshotCache(client redis.Cmdable) *SnapshotCache {
	return &SnapshotCache{client: client, HistoryLimit: DefaultHistoryLimit}
}

// SetLatest overwrites the zone's entry in the latest hash.
func (c *SnapshotCache) SetLatest(ctx context.Context, rec models.SurgeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.HSet(ctx, LatestKey, rec.ZoneID, b).Err()
}

// AppendHistory adds rec to the zone's history and trims the oldest entries
// past HistoryLimit.
func (c *SnapshotCache) AppendHistory(ctx context.Context, rec models.SurgeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := HistoryKey(rec.ZoneID)
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(rec.ComputedAt.UnixMilli()), Member: b})
		if c.HistoryLimit > 0 {
			p.ZRemRangeByRank(ctx, key, 0, -c.HistoryLimit-1)
		}
		return nil
	})
	return err
}

// Reset drops the latest hash and every zone history.
func (c *SnapshotCache) Reset(ctx context.Context) error {
	keys := []string{LatestKey}
	iter := c.client.Scan(ctx, 0, historyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan history keys: %w", err)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Record writes a whole snapshot; it satisfies surge.Sink.
func (c *SnapshotCache) Record(ctx context.Context, recs []models.SurgeRecord) error {
	for _, r := range recs {
		if err := c.SetLatest(ctx, r); err != nil {
			return fmt.Errorf("cache latest %s: %w", r.ZoneID, err)
		}
		if err := c.AppendHistory(ctx, r); err != nil {
			return fmt.Errorf("cache history %s: %w", r.ZoneID, err)
		}
	}
	return nil
}

// Latest returns the newest cached record of every zone, ordered by zone.
func (c *SnapshotCache) Latest(ctx context.Context) ([]models.SurgeRecord, error) {
	vals, err := c.client.HGetAll(ctx, LatestKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.SurgeRecord, 0, len(vals))
	for zone, v := range vals {
		var rec models.SurgeRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode latest %s: %w", zone, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out, nil
}

// History returns the zone's cached records computed at or after since,
// oldest first.
func (c *SnapshotCache) History(ctx context.Context, zoneID string, since time.Time) ([]models.SurgeRecord, error) {
	lo := "-inf"
	if !since.IsZero() {
		lo = strconv.FormatInt(since.UnixMilli(), 10)
	}
	vals, err := c.client.ZRangeByScore(ctx, HistoryKey(zoneID), &redis.ZRangeBy{Min: lo, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.SurgeRecord, 0, len(vals))
	for _, v := range vals {
		var rec models.SurgeRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", zoneID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
