package fare

import (
	"errors"
	"math"
)

// Policy prices a trip. The generator and fare quotes both go through Fare
// so stored fares and quoted fares agree.
type Policy struct {
	BaseFare float64
	PerKm    float64
}

func DefaultPolicy() Policy {
	return Policy{BaseFare: 3.0, PerKm: 1.5}
}

func (p Policy) Validate() error {
	if math.IsNaN(p.BaseFare) || math.IsNaN(p.PerKm) || math.IsInf(p.BaseFare, 0) || math.IsInf(p.PerKm, 0) {
		return errors.New("fare: base fare and per-km rate must be finite")
	}
	if p.BaseFare < 0 || p.PerKm < 0 {
		return errors.New("fare: base fare and per-km rate must be >= 0")
	}
	return nil
}

// Fare = base + distance * perKm * multiplier, rounded to cents. Multipliers
// below 1 are treated as 1.
func (p Policy) Fare(distanceKm, multiplier float64) float64 {
	if multiplier < 1 {
		multiplier = 1
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	return Round(p.BaseFare + distanceKm*p.PerKm*multiplier)
}

func Round(v float64) float64 { return math.Round(v*100) / 100 }

// MinorUnits converts a fare to the smallest currency unit (cents).
func MinorUnits(v float64) int64 { return int64(math.Round(v * 100)) }
