package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/surge-dashboard/internal/models"
)

var allCollections = []string{
	models.CollectionZones,
	models.CollectionDrivers,
	models.CollectionRiders,
	models.CollectionVehicles,
	models.CollectionRides,
	models.CollectionSnapshots,
}

// MongoStore keeps one document collection per entity type.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(3*time.Second))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	idx := map[string][]mongo.IndexModel{
		models.CollectionZones:    {{Keys: bson.D{{Key: "zone_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		models.CollectionVehicles: {{Keys: bson.D{{Key: "vehicle_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		models.CollectionRiders:   {{Keys: bson.D{{Key: "rider_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		models.CollectionDrivers: {
			{Keys: bson.D{{Key: "driver_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "zone_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		models.CollectionRides: {
			{Keys: bson.D{{Key: "ride_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "zone_id", Value: 1}, {Key: "status", Value: 1}, {Key: "request_time", Value: -1}}},
		},
		models.CollectionSnapshots: {{Keys: bson.D{{Key: "zone_id", Value: 1}, {Key: "timestamp", Value: -1}}}},
	}
	for coll, ims := range idx {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, ims); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) InsertEntities(ctx context.Context, collection string, records []any) error {
	if err := checkRecords(collection, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	_, err := s.db.Collection(collection).InsertMany(ctx, records)
	return err
}

func (s *MongoStore) QueryRides(ctx context.Context, zoneID string, statuses []models.RideStatus, since time.Time) ([]models.Ride, error) {
	filter := bson.M{}
	if zoneID != "" {
		filter["zone_id"] = zoneID
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	if !since.IsZero() {
		filter["request_time"] = bson.M{"$gte": since}
	}
	opts := options.Find().SetSort(bson.D{{Key: "request_time", Value: -1}, {Key: "ride_id", Value: 1}})
	var out []models.Ride
	if err := s.find(ctx, models.CollectionRides, filter, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) QueryDrivers(ctx context.Context, zoneID string, status models.DriverStatus) ([]models.Driver, error) {
	filter := bson.M{}
	if zoneID != "" {
		filter["zone_id"] = zoneID
	}
	if status != "" {
		filter["status"] = status
	}
	var out []models.Driver
	if err := s.find(ctx, models.CollectionDrivers, filter, options.Find().SetSort(bson.D{{Key: "driver_id", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ReadZones(ctx context.Context) ([]models.Zone, error) {
	var out []models.Zone
	if err := s.find(ctx, models.CollectionZones, bson.M{}, options.Find().SetSort(bson.D{{Key: "zone_id", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	return s.QueryDrivers(ctx, "", "")
}

func (s *MongoStore) ListRiders(ctx context.Context) ([]models.Rider, error) {
	var out []models.Rider
	if err := s.find(ctx, models.CollectionRiders, bson.M{}, options.Find().SetSort(bson.D{{Key: "rider_id", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if err := s.find(ctx, models.CollectionVehicles, bson.M{}, options.Find().SetSort(bson.D{{Key: "vehicle_id", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ListRides(ctx context.Context, statuses []models.RideStatus) ([]models.Ride, error) {
	return s.QueryRides(ctx, "", statuses, time.Time{})
}

func (s *MongoStore) GetRide(ctx context.Context, id string) (models.Ride, bool, error) {
	var r models.Ride
	err := s.db.Collection(models.CollectionRides).FindOne(ctx, bson.M{"ride_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Ride{}, false, nil
	}
	if err != nil {
		return models.Ride{}, false, err
	}
	return r, true, nil
}

func (s *MongoStore) SaveSnapshots(ctx context.Context, recs []models.SurgeRecord) error {
	records := make([]any, len(recs))
	for i, r := range recs {
		records[i] = r
	}
	return s.InsertEntities(ctx, models.CollectionSnapshots, records)
}

func (s *MongoStore) ListSnapshots(ctx context.Context, zoneID string, since time.Time) ([]models.SurgeRecord, error) {
	filter := bson.M{}
	if zoneID != "" {
		filter["zone_id"] = zoneID
	}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gte": since}
	}
	var out []models.SurgeRecord
	if err := s.find(ctx, models.CollectionSnapshots, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Reset(ctx context.Context) error {
	for _, c := range allCollections {
		if _, err := s.db.Collection(c).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *MongoStore) find(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions, out any) error {
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return cur.All(ctx, out)
}
