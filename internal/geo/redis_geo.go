package geo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/surge-dashboard/internal/models"
)

// RedisGeo implements Locator using Redis GEO commands. Zone centers live in a
// GEO set, zone attributes in a hash per zone.
type RedisGeo struct {
	client *redis.Client
	key    string
	// SearchRadiusKm bounds the GEORADIUS lookup; it must be at least the
	// largest zone radius.
	SearchRadiusKm float64
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key, SearchRadiusKm: 25}
}

func (r *RedisGeo) Upsert(ctx context.Context, z models.Zone) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: z.Center.Lon, Latitude: z.Center.Lat, Name: z.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd zone %s: %w", z.ID, err)
	}
	return r.client.HSet(ctx, r.metaKey(z.ID), map[string]interface{}{
		"name":      z.Name,
		"radius_km": strconv.FormatFloat(z.RadiusKm, 'f', -1, 64),
		"lat":       strconv.FormatFloat(z.Center.Lat, 'f', -1, 64),
		"lon":       strconv.FormatFloat(z.Center.Lon, 'f', -1, 64),
		"geohash":   z.Geohash,
	}).Err()
}

func (r *RedisGeo) Locate(ctx context.Context, c models.Coord) (models.Zone, bool, error) {
	res, err := r.client.GeoRadius(ctx, r.key, c.Lon, c.Lat, &redis.GeoRadiusQuery{Radius: r.SearchRadiusKm, Unit: "km", WithDist: true, Sort: "ASC"}).Result()
	if err != nil {
		return models.Zone{}, false, fmt.Errorf("georadius: %w", err)
	}
	for _, g := range res {
		m, err := r.client.HGetAll(ctx, r.metaKey(g.Name)).Result()
		if err != nil {
			return models.Zone{}, false, err
		}
		z := zoneFromMeta(g.Name, m)
		if g.Dist <= z.RadiusKm {
			return z, true, nil
		}
	}
	return models.Zone{}, false, nil
}

// Reset drops the GEO set and every zone hash.
func (r *RedisGeo) Reset(ctx context.Context) error {
	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return err
	}
	keys := []string{r.key}
	for _, id := range ids {
		keys = append(keys, r.metaKey(id))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisGeo) metaKey(id string) string { return r.key + ":meta:" + id }

func zoneFromMeta(id string, m map[string]string) models.Zone {
	z := models.Zone{ID: id, Name: m["name"], Geohash: m["geohash"]}
	z.RadiusKm, _ = strconv.ParseFloat(m["radius_km"], 64)
	z.Center.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	z.Center.Lon, _ = strconv.ParseFloat(m["lon"], 64)
	return z
}
