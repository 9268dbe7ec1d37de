package geo

import (
	"context"
	"math"
	"sync"

	"github.com/mmcloughlin/geohash"

	"github.com/example/surge-dashboard/internal/models"
)

// CellPrecision is the geohash length used to bucket zones (~5km cells).
const CellPrecision = 5

// Locator resolves coordinates to zones. Used by fare quotes and seeding.
type Locator interface {
	Upsert(ctx context.Context, z models.Zone) error
	Locate(ctx context.Context, c models.Coord) (models.Zone, bool, error)
	Reset(ctx context.Context) error
}

// Index is an in-memory Locator. Zones are bucketed by the geohash cell of
// their center.
type Index struct {
	mu    sync.RWMutex
	zones map[string]models.Zone
	cells map[string][]string
}

func NewIndex() *Index {
	return &Index{zones: make(map[string]models.Zone), cells: make(map[string][]string)}
}

func (g *Index) Upsert(_ context.Context, z models.Zone) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.zones[z.ID]; ok {
		g.removeFromCell(Cell(old.Center), old.ID)
	}
	g.zones[z.ID] = z
	cell := Cell(z.Center)
	g.cells[cell] = append(g.cells[cell], z.ID)
	return nil
}

func (g *Index) Reset(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.zones = make(map[string]models.Zone)
	g.cells = make(map[string][]string)
	return nil
}

func (g *Index) removeFromCell(cell, id string) {
	ids := g.cells[cell]
	for i, v := range ids {
		if v == id {
			g.cells[cell] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Locate returns the nearest zone whose circle contains c. The cell of c and
// its neighbours are checked first; large zones centered further away are
// caught by the full scan fallback.
func (g *Index) Locate(_ context.Context, c models.Coord) (models.Zone, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cell := Cell(c)
	var cands []string
	for _, h := range append([]string{cell}, geohash.Neighbors(cell)...) {
		cands = append(cands, g.cells[h]...)
	}
	if z, ok := g.nearest(c, cands); ok {
		return z, true, nil
	}
	all := make([]string, 0, len(g.zones))
	for id := range g.zones {
		all = append(all, id)
	}
	z, ok := g.nearest(c, all)
	return z, ok, nil
}

func (g *Index) nearest(c models.Coord, ids []string) (models.Zone, bool) {
	var (
		best  models.Zone
		bestD = math.Inf(1)
		found bool
	)
	for _, id := range ids {
		z := g.zones[id]
		d := HaversineKm(c.Lat, c.Lon, z.Center.Lat, z.Center.Lon)
		if d > z.RadiusKm || d > bestD {
			continue
		}
		// ties go to the lexically smaller id so lookups are stable
		if d == bestD && found && z.ID > best.ID {
			continue
		}
		best, bestD, found = z, d, true
	}
	return best, found
}

// Cell returns the bucketing geohash for a coordinate.
func Cell(c models.Coord) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lon, CellPrecision)
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Offset moves c by the given distances in km (north, east). Good enough at
// city scale.
func Offset(c models.Coord, northKm, eastKm float64) models.Coord {
	const kmPerDeg = 111.32
	lat := c.Lat + northKm/kmPerDeg
	lon := c.Lon + eastKm/(kmPerDeg*math.Cos(c.Lat*math.Pi/180))
	return models.Coord{Lat: lat, Lon: lon}
}
