// Package analytics aggregates stored entities into the dashboard views.
// Every function is pure over its inputs; Service loads the inputs.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/models"
)

// FarePerKmCap drops outliers from the fare-per-km distribution.
const FarePerKmCap = 50.0

type Summary struct {
	TotalRides       int     `json:"total_rides"`
	AvailableDrivers int     `json:"available_drivers"`
	TotalRevenue     float64 `json:"total_revenue"`
	AvgRating        float64 `json:"avg_rating"`
}

func Summarize(rides []models.Ride, drivers []models.Driver) Summary {
	s := Summary{TotalRides: len(rides)}
	for _, d := range drivers {
		if d.Status == models.DriverAvailable {
			s.AvailableDrivers++
		}
	}
	var ratingSum float64
	var rated int
	for _, r := range rides {
		if r.Status == models.RideCompleted {
			s.TotalRevenue += r.Fare
		}
		if r.Rating != nil {
			ratingSum += *r.Rating
			rated++
		}
	}
	s.TotalRevenue = fare.Round(s.TotalRevenue)
	if rated > 0 {
		s.AvgRating = fare.Round(ratingSum / float64(rated))
	}
	return s
}

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func RideStatusDistribution(rides []models.Ride) []Count {
	m := make(map[string]int)
	for _, r := range rides {
		m[string(r.Status)]++
	}
	return counts(m)
}

func DriverStatusDistribution(drivers []models.Driver) []Count {
	m := make(map[string]int)
	for _, d := range drivers {
		m[string(d.Status)]++
	}
	return counts(m)
}

// counts orders by count descending, then key.
func counts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

type DayRevenue struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Rides   int     `json:"rides"`
}

// DailyRevenue sums completed fares per UTC request date for the last days
// days ending at now. Days without rides are reported with zero revenue.
func DailyRevenue(rides []models.Ride, now time.Time, days int) []DayRevenue {
	if days <= 0 {
		return nil
	}
	const layout = "2006-01-02"
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))
	out := make([]DayRevenue, days)
	index := make(map[string]int, days)
	for i := range out {
		d := start.AddDate(0, 0, i).Format(layout)
		out[i].Date = d
		index[d] = i
	}
	for _, r := range rides {
		if r.Status != models.RideCompleted {
			continue
		}
		i, ok := index[r.RequestedAt.UTC().Format(layout)]
		if !ok {
			continue
		}
		out[i].Revenue += r.Fare
		out[i].Rides++
	}
	for i := range out {
		out[i].Revenue = fare.Round(out[i].Revenue)
	}
	return out
}

type Earner struct {
	DriverID      string  `json:"driver_id"`
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	EarningsToday float64 `json:"earnings_today"`
}

func TopEarners(drivers []models.Driver, n int) []Earner {
	ds := append([]models.Driver(nil), drivers...)
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].EarningsToday != ds[j].EarningsToday {
			return ds[i].EarningsToday > ds[j].EarningsToday
		}
		return ds[i].ID < ds[j].ID
	})
	if n >= 0 && len(ds) > n {
		ds = ds[:n]
	}
	out := make([]Earner, 0, len(ds))
	for _, d := range ds {
		out = append(out, Earner{DriverID: d.ID, Name: d.Name, Rating: d.Rating, EarningsToday: d.EarningsToday})
	}
	return out
}

type Bucket struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Count int     `json:"count"`
}

// histogram buckets values into [lo, hi) slices of width; the last bucket
// is closed so hi itself is counted. Values outside the range are ignored.
func histogram(values []float64, lo, hi, width float64) []Bucket {
	n := int(math.Ceil((hi - lo) / width))
	out := make([]Bucket, n)
	for i := range out {
		out[i].From = fare.Round(lo + float64(i)*width)
		out[i].To = fare.Round(math.Min(lo+float64(i+1)*width, hi))
	}
	for _, v := range values {
		if v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		out[i].Count++
	}
	return out
}

// DriverRatingHistogram buckets driver ratings between 1 and 5 in half stars.
func DriverRatingHistogram(drivers []models.Driver) []Bucket {
	vals := make([]float64, 0, len(drivers))
	for _, d := range drivers {
		vals = append(vals, d.Rating)
	}
	return histogram(vals, 1, 5, 0.5)
}

type Efficiency struct {
	CompletedRides     int     `json:"completed_rides"`
	AvgSpeedKmPerMin   float64 `json:"avg_speed_km_per_min"`
	AvgDistanceKm      float64 `json:"avg_distance_km"`
	MinDistanceKm      float64 `json:"min_distance_km"`
	MaxDistanceKm      float64 `json:"max_distance_km"`
	MedianDistanceKm   float64 `json:"median_distance_km"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
}

// TripEfficiency summarizes completed rides. Average speed is total distance
// over total minutes.
func TripEfficiency(rides []models.Ride) Efficiency {
	var e Efficiency
	var dist []float64
	var minutes int
	for _, r := range rides {
		if r.Status != models.RideCompleted {
			continue
		}
		dist = append(dist, r.DistanceKm)
		minutes += r.DurationMinutes
	}
	e.CompletedRides = len(dist)
	if len(dist) == 0 {
		return e
	}
	sort.Float64s(dist)
	var total float64
	for _, d := range dist {
		total += d
	}
	e.AvgSpeedKmPerMin = fare.Round(total / float64(max(minutes, 1)))
	e.AvgDistanceKm = fare.Round(total / float64(len(dist)))
	e.MinDistanceKm = dist[0]
	e.MaxDistanceKm = dist[len(dist)-1]
	if m := len(dist) / 2; len(dist)%2 == 1 {
		e.MedianDistanceKm = dist[m]
	} else {
		e.MedianDistanceKm = fare.Round((dist[m-1] + dist[m]) / 2)
	}
	e.AvgDurationMinutes = fare.Round(float64(minutes) / float64(len(dist)))
	return e
}

type StatusRevenue struct {
	Status  models.RideStatus `json:"status"`
	Rides   int               `json:"rides"`
	Revenue float64           `json:"revenue"`
}

func RevenueByStatus(rides []models.Ride) []StatusRevenue {
	idx := make(map[models.RideStatus]int)
	var out []StatusRevenue
	for _, r := range rides {
		i, ok := idx[r.Status]
		if !ok {
			i = len(out)
			idx[r.Status] = i
			out = append(out, StatusRevenue{Status: r.Status})
		}
		out[i].Rides++
		out[i].Revenue += r.Fare
	}
	for i := range out {
		out[i].Revenue = fare.Round(out[i].Revenue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// FarePerKm buckets fare/distance for rides with a positive distance, in
// unit-wide buckets below FarePerKmCap.
func FarePerKm(rides []models.Ride) []Bucket {
	var vals []float64
	for _, r := range rides {
		if r.DistanceKm <= 0 {
			continue
		}
		if v := r.Fare / r.DistanceKm; v < FarePerKmCap {
			vals = append(vals, v)
		}
	}
	return trim(histogram(vals, 0, FarePerKmCap, 1))
}

// trim drops empty buckets from both ends.
func trim(bs []Bucket) []Bucket {
	lo, hi := 0, len(bs)
	for lo < hi && bs[lo].Count == 0 {
		lo++
	}
	for hi > lo && bs[hi-1].Count == 0 {
		hi--
	}
	return bs[lo:hi]
}

type RatingCount struct {
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
}

// RideRatings counts completed ride ratings by value, ascending.
func RideRatings(rides []models.Ride) []RatingCount {
	m := make(map[float64]int)
	for _, r := range rides {
		if r.Status == models.RideCompleted && r.Rating != nil {
			m[*r.Rating]++
		}
	}
	out := make([]RatingCount, 0, len(m))
	for k, v := range m {
		out = append(out, RatingCount{Rating: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating < out[j].Rating })
	return out
}

// HighSurge returns records whose multiplier exceeds threshold, highest first.
func HighSurge(recs []models.SurgeRecord, threshold float64) []models.SurgeRecord {
	var out []models.SurgeRecord
	for _, r := range recs {
		if r.Multiplier > threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Multiplier > out[j].Multiplier })
	return out
}
