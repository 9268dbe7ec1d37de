package surge

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BaseLevel is reported when the ratio sits below every tier.
const BaseLevel = "low"

// Tier applies Multiplier once the demand/supply ratio reaches MinRatio.
type Tier struct {
	MinRatio   float64 `json:"min_ratio"`
	Multiplier float64 `json:"multiplier"`
	Level      string  `json:"level"`
}

// Policy is a step function from ratio to multiplier. Tiers are kept sorted
// by MinRatio with non-decreasing multipliers, so Multiplier is monotonic and
// never below 1.0.
type Policy struct {
	tiers []Tier
}

var defaultLevels = []string{"medium", "high", "very_high"}

// DefaultPolicy: <1 -> 1.0x, [1,2) -> 1.2x, [2,4) -> 1.5x, >=4 -> 2.0x.
func DefaultPolicy() Policy {
	return Policy{tiers: []Tier{
		{MinRatio: 1, Multiplier: 1.2, Level: "medium"},
		{MinRatio: 2, Multiplier: 1.5, Level: "high"},
		{MinRatio: 4, Multiplier: 2.0, Level: "very_high"},
	}}
}

// NewPolicy validates and sorts the tiers.
func NewPolicy(tiers []Tier) (Policy, error) {
	ts := append([]Tier(nil), tiers...)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].MinRatio < ts[j].MinRatio })
	var errs []error
	prev := 1.0
	for i, t := range ts {
		if !finite(t.MinRatio) || !finite(t.Multiplier) {
			errs = append(errs, fmt.Errorf("tier %d: ratio and multiplier must be finite", i))
			continue
		}
		if t.MinRatio <= 0 {
			errs = append(errs, fmt.Errorf("tier %d: min ratio must be > 0", i))
		}
		if i > 0 && t.MinRatio == ts[i-1].MinRatio {
			errs = append(errs, fmt.Errorf("tier %d: duplicate min ratio %v", i, t.MinRatio))
		}
		if t.Multiplier < prev {
			errs = append(errs, fmt.Errorf("tier %d: multiplier %v breaks monotonicity (previous %v)", i, t.Multiplier, prev))
		}
		prev = t.Multiplier
		if ts[i].Level == "" {
			ts[i].Level = levelName(i)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Policy{}, err
	}
	return Policy{tiers: ts}, nil
}

// ParsePolicy reads "ratio:multiplier" pairs, e.g. "1:1.2,2:1.5,4:2.0".
func ParsePolicy(table string) (Policy, error) {
	var tiers []Tier
	for _, part := range strings.Split(table, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, m, ok := strings.Cut(part, ":")
		if !ok {
			return Policy{}, fmt.Errorf("tier %q: want ratio:multiplier", part)
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return Policy{}, fmt.Errorf("tier %q: %w", part, err)
		}
		mult, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
		if err != nil {
			return Policy{}, fmt.Errorf("tier %q: %w", part, err)
		}
		tiers = append(tiers, Tier{MinRatio: ratio, Multiplier: mult})
	}
	if len(tiers) == 0 {
		return Policy{}, errors.New("no surge tiers")
	}
	return NewPolicy(tiers)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func levelName(i int) string {
	if i < len(defaultLevels) {
		return defaultLevels[i]
	}
	return "level_" + strconv.Itoa(i+1)
}

// Multiplier returns the fare multiplier and level for a ratio.
func (p Policy) Multiplier(ratio float64) (float64, string) {
	mult, level := 1.0, BaseLevel
	for _, t := range p.tiers {
		if ratio < t.MinRatio {
			break
		}
		mult, level = t.Multiplier, t.Level
	}
	return mult, level
}

// Max is the multiplier of the top tier.
func (p Policy) Max() (float64, string) {
	if len(p.tiers) == 0 {
		return 1.0, BaseLevel
	}
	t := p.tiers[len(p.tiers)-1]
	return t.Multiplier, t.Level
}

// TopRatio is the MinRatio of the top tier, 0 for an empty policy.
func (p Policy) TopRatio() float64 {
	if len(p.tiers) == 0 {
		return 0
	}
	return p.tiers[len(p.tiers)-1].MinRatio
}

func (p Policy) Tiers() []Tier { return append([]Tier(nil), p.tiers...) }

func (p Policy) String() string {
	parts := make([]string, 0, len(p.tiers))
	for _, t := range p.tiers {
		parts = append(parts, strconv.FormatFloat(t.MinRatio, 'f', -1, 64)+":"+strconv.FormatFloat(t.Multiplier, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}
