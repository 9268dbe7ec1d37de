package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/surge-dashboard/internal/models"
)

// PostgresStore maps each collection to a table of the same name.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the SQL file at path.
func (p *PostgresStore) Migrate(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, string(b))
	return err
}

type zoneRow struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	CenterLat float64 `db:"center_lat"`
	CenterLon float64 `db:"center_lon"`
	RadiusKm  float64 `db:"radius_km"`
	Geohash   string  `db:"geohash"`
}

type vehicleRow struct {
	ID           string `db:"id"`
	Make         string `db:"make"`
	Model        string `db:"model"`
	Year         int    `db:"year"`
	LicensePlate string `db:"license_plate"`
	Color        string `db:"color"`
	Capacity     int    `db:"capacity"`
}

type driverRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Phone         string         `db:"phone"`
	Lat           float64        `db:"lat"`
	Lon           float64        `db:"lon"`
	ZoneID        string         `db:"zone_id"`
	Status        string         `db:"status"`
	Rating        float64        `db:"rating"`
	VehicleID     sql.NullString `db:"vehicle_id"`
	TotalRides    int            `db:"total_rides"`
	EarningsToday float64        `db:"earnings_today"`
}

type riderRow struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	Phone         string  `db:"phone"`
	ZoneID        string  `db:"zone_id"`
	Rating        float64 `db:"rating"`
	TotalRides    int     `db:"total_rides"`
	PaymentMethod string  `db:"payment_method"`
	WalletBalance float64 `db:"wallet_balance"`
}

type rideRow struct {
	ID              string          `db:"id"`
	RiderID         string          `db:"rider_id"`
	DriverID        sql.NullString  `db:"driver_id"`
	PickupAddress   string          `db:"pickup_address"`
	PickupLat       float64         `db:"pickup_lat"`
	PickupLon       float64         `db:"pickup_lon"`
	DropoffAddress  string          `db:"dropoff_address"`
	DropoffLat      float64         `db:"dropoff_lat"`
	DropoffLon      float64         `db:"dropoff_lon"`
	ZoneID          string          `db:"zone_id"`
	Status          string          `db:"status"`
	DistanceKm      float64         `db:"distance_km"`
	DurationMinutes int             `db:"duration_minutes"`
	SurgeMultiplier float64         `db:"surge_multiplier"`
	TotalFare       float64         `db:"total_fare"`
	PaymentStatus   string          `db:"payment_status"`
	Rating          sql.NullFloat64 `db:"rating"`
	RequestedAt     time.Time       `db:"requested_at"`
	StartedAt       sql.NullTime    `db:"started_at"`
	EndedAt         sql.NullTime    `db:"ended_at"`
}

type snapshotRow struct {
	ZoneID         string    `db:"zone_id"`
	ZoneName       string    `db:"zone_name"`
	Demand         int       `db:"demand"`
	Supply         int       `db:"supply"`
	Ratio          float64   `db:"ratio"`
	Multiplier     float64   `db:"multiplier"`
	Level          string    `db:"level"`
	AvgWaitMinutes float64   `db:"avg_wait_minutes"`
	ComputedAt     time.Time `db:"computed_at"`
}

const (
	zoneColumns     = `id, name, center_lat, center_lon, radius_km, geohash`
	vehicleColumns  = `id, make, model, year, license_plate, color, capacity`
	driverColumns   = `id, name, phone, lat, lon, zone_id, status, rating, vehicle_id, total_rides, earnings_today`
	riderColumns    = `id, name, phone, zone_id, rating, total_rides, payment_method, wallet_balance`
	rideColumns     = `id, rider_id, driver_id, pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon, zone_id, status, distance_km, duration_minutes, surge_multiplier, total_fare, payment_status, rating, requested_at, started_at, ended_at`
	snapshotColumns = `zone_id, zone_name, demand, supply, ratio, multiplier, level, avg_wait_minutes, computed_at`
)

var tableColumns = map[string]string{
	models.CollectionZones:     zoneColumns,
	models.CollectionVehicles:  vehicleColumns,
	models.CollectionDrivers:   driverColumns,
	models.CollectionRiders:    riderColumns,
	models.CollectionRides:     rideColumns,
	models.CollectionSnapshots: snapshotColumns,
}

// insertQuery builds a named batch insert from a column list.
func insertQuery(table string) string {
	cols := strings.Split(tableColumns[table], ", ")
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, tableColumns[table], strings.Join(named, ", "))
}

func (p *PostgresStore) InsertEntities(ctx context.Context, collection string, records []any) error {
	if err := checkRecords(collection, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	rows, err := toRows(collection, records)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.NamedExecContext(ctx, insertQuery(collection), rows); err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}
	return tx.Commit()
}

func toRows(collection string, records []any) (any, error) {
	switch collection {
	case models.CollectionZones:
		zs, err := typed[models.Zone](collection, records)
		out := make([]zoneRow, len(zs))
		for i, z := range zs {
			out[i] = zoneRow{ID: z.ID, Name: z.Name, CenterLat: z.Center.Lat, CenterLon: z.Center.Lon, RadiusKm: z.RadiusKm, Geohash: z.Geohash}
		}
		return out, err
	case models.CollectionVehicles:
		vs, err := typed[models.Vehicle](collection, records)
		out := make([]vehicleRow, len(vs))
		for i, v := range vs {
			out[i] = vehicleRow(v)
		}
		return out, err
	case models.CollectionDrivers:
		ds, err := typed[models.Driver](collection, records)
		out := make([]driverRow, len(ds))
		for i, d := range ds {
			out[i] = driverRow{
				ID: d.ID, Name: d.Name, Phone: d.Phone, Lat: d.Location.Lat, Lon: d.Location.Lon,
				ZoneID: d.ZoneID, Status: string(d.Status), Rating: d.Rating,
				VehicleID:  sql.NullString{String: d.VehicleID, Valid: d.VehicleID != ""},
				TotalRides: d.TotalRides, EarningsToday: d.EarningsToday,
			}
		}
		return out, err
	case models.CollectionRiders:
		rs, err := typed[models.Rider](collection, records)
		out := make([]riderRow, len(rs))
		for i, r := range rs {
			out[i] = riderRow(r)
		}
		return out, err
	case models.CollectionRides:
		rs, err := typed[models.Ride](collection, records)
		out := make([]rideRow, len(rs))
		for i, r := range rs {
			out[i] = fromRide(r)
		}
		return out, err
	case models.CollectionSnapshots:
		ss, err := typed[models.SurgeRecord](collection, records)
		out := make([]snapshotRow, len(ss))
		for i, s := range ss {
			out[i] = snapshotRow(s)
		}
		return out, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}

func fromRide(r models.Ride) rideRow {
	row := rideRow{
		ID: r.ID, RiderID: r.RiderID,
		DriverID:      sql.NullString{String: r.DriverID, Valid: r.DriverID != ""},
		PickupAddress: r.Pickup.Address, PickupLat: r.Pickup.Lat, PickupLon: r.Pickup.Lon,
		DropoffAddress: r.Dropoff.Address, DropoffLat: r.Dropoff.Lat, DropoffLon: r.Dropoff.Lon,
		ZoneID: r.ZoneID, Status: string(r.Status), DistanceKm: r.DistanceKm, DurationMinutes: r.DurationMinutes,
		SurgeMultiplier: r.SurgeMultiplier, TotalFare: r.Fare, PaymentStatus: r.PaymentStatus,
		RequestedAt: r.RequestedAt,
	}
	if r.Rating != nil {
		row.Rating = sql.NullFloat64{Float64: *r.Rating, Valid: true}
	}
	if r.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *r.StartedAt, Valid: true}
	}
	if r.EndedAt != nil {
		row.EndedAt = sql.NullTime{Time: *r.EndedAt, Valid: true}
	}
	return row
}

func (row rideRow) toRide() models.Ride {
	r := models.Ride{
		ID: row.ID, RiderID: row.RiderID, DriverID: row.DriverID.String,
		Pickup:  models.Place{Address: row.PickupAddress, Coord: models.Coord{Lat: row.PickupLat, Lon: row.PickupLon}},
		Dropoff: models.Place{Address: row.DropoffAddress, Coord: models.Coord{Lat: row.DropoffLat, Lon: row.DropoffLon}},
		ZoneID:  row.ZoneID, Status: models.RideStatus(row.Status), DistanceKm: row.DistanceKm,
		DurationMinutes: row.DurationMinutes, SurgeMultiplier: row.SurgeMultiplier, Fare: row.TotalFare,
		PaymentStatus: row.PaymentStatus, RequestedAt: row.RequestedAt,
	}
	if row.Rating.Valid {
		v := row.Rating.Float64
		r.Rating = &v
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		r.StartedAt = &t
	}
	if row.EndedAt.Valid {
		t := row.EndedAt.Time
		r.EndedAt = &t
	}
	return r
}

func (row driverRow) toDriver() models.Driver {
	return models.Driver{
		ID: row.ID, Name: row.Name, Phone: row.Phone, Location: models.Coord{Lat: row.Lat, Lon: row.Lon},
		ZoneID: row.ZoneID, Status: models.DriverStatus(row.Status), Rating: row.Rating,
		VehicleID: row.VehicleID.String, TotalRides: row.TotalRides, EarningsToday: row.EarningsToday,
	}
}

// where accumulates positional conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (p *PostgresStore) QueryRides(ctx context.Context, zoneID string, statuses []models.RideStatus, since time.Time) ([]models.Ride, error) {
	var w where
	if zoneID != "" {
		w.add("zone_id = $%d", zoneID)
	}
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		w.add("status = ANY($%d)", pq.Array(ss))
	}
	if !since.IsZero() {
		w.add("requested_at >= $%d", since)
	}
	var rows []rideRow
	q := "SELECT " + rideColumns + " FROM rides" + w.String() + " ORDER BY requested_at DESC, id"
	if err := p.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, err
	}
	out := make([]models.Ride, len(rows))
	for i, row := range rows {
		out[i] = row.toRide()
	}
	return out, nil
}

func (p *PostgresStore) QueryDrivers(ctx context.Context, zoneID string, status models.DriverStatus) ([]models.Driver, error) {
	var w where
	if zoneID != "" {
		w.add("zone_id = $%d", zoneID)
	}
	if status != "" {
		w.add("status = $%d", string(status))
	}
	var rows []driverRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT "+driverColumns+" FROM drivers"+w.String()+" ORDER BY id", w.args...); err != nil {
		return nil, err
	}
	out := make([]models.Driver, len(rows))
	for i, row := range rows {
		out[i] = row.toDriver()
	}
	return out, nil
}

func (p *PostgresStore) ReadZones(ctx context.Context) ([]models.Zone, error) {
	var rows []zoneRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT "+zoneColumns+" FROM zones ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]models.Zone, len(rows))
	for i, r := range rows {
		out[i] = models.Zone{ID: r.ID, Name: r.Name, Center: models.Coord{Lat: r.CenterLat, Lon: r.CenterLon}, RadiusKm: r.RadiusKm, Geohash: r.Geohash}
	}
	return out, nil
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	return p.QueryDrivers(ctx, "", "")
}

func (p *PostgresStore) ListRiders(ctx context.Context) ([]models.Rider, error) {
	var rows []riderRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT "+riderColumns+" FROM riders ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]models.Rider, len(rows))
	for i, r := range rows {
		out[i] = models.Rider(r)
	}
	return out, nil
}

func (p *PostgresStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var rows []vehicleRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT "+vehicleColumns+" FROM vehicles ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]models.Vehicle, len(rows))
	for i, v := range rows {
		out[i] = models.Vehicle(v)
	}
	return out, nil
}

func (p *PostgresStore) ListRides(ctx context.Context, statuses []models.RideStatus) ([]models.Ride, error) {
	return p.QueryRides(ctx, "", statuses, time.Time{})
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (models.Ride, bool, error) {
	var row rideRow
	err := p.db.GetContext(ctx, &row, "SELECT "+rideColumns+" FROM rides WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ride{}, false, nil
	}
	if err != nil {
		return models.Ride{}, false, err
	}
	return row.toRide(), true, nil
}

func (p *PostgresStore) SaveSnapshots(ctx context.Context, recs []models.SurgeRecord) error {
	records := make([]any, len(recs))
	for i, r := range recs {
		records[i] = r
	}
	return p.InsertEntities(ctx, models.CollectionSnapshots, records)
}

func (p *PostgresStore) ListSnapshots(ctx context.Context, zoneID string, since time.Time) ([]models.SurgeRecord, error) {
	var w where
	if zoneID != "" {
		w.add("zone_id = $%d", zoneID)
	}
	if !since.IsZero() {
		w.add("computed_at >= $%d", since)
	}
	var rows []snapshotRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT "+snapshotColumns+" FROM surge_pricing"+w.String()+" ORDER BY computed_at, id", w.args...); err != nil {
		return nil, err
	}
	out := make([]models.SurgeRecord, len(rows))
	for i, r := range rows {
		out[i] = models.SurgeRecord(r)
	}
	return out, nil
}

func (p *PostgresStore) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "TRUNCATE zones, vehicles, drivers, riders, rides, surge_pricing")
	return err
}

func (p *PostgresStore) Close(context.Context) error { return p.db.Close() }
