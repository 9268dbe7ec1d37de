package eta

import (
	"testing"

	"github.com/example/surge-dashboard/internal/models"
)

func TestDistanceKmSamePoint(t *testing.T) {
	c := models.Coord{Lat: 40.75, Lon: -73.98}
	if d := DistanceKm(c, c); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestEstimateMinutes(t *testing.T) {
	cases := []struct {
		km, speed float64
		want      int
	}{
		{12, 24, 30},
		{0, 24, 1},
		{1, 0, 3}, // default speed
		{30, 60, 30},
	}
	for _, c := range cases {
		if got := EstimateMinutes(c.km, c.speed); got != c.want {
			t.Fatalf("EstimateMinutes(%v, %v) = %d, want %d", c.km, c.speed, got, c.want)
		}
	}
}
