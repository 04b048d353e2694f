package engine

import (
	"math/rand"
	"time"

	"github.com/pefman/critsim/internal/models"
)

func newRNG() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }

func seededRNG(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

// Roller draws crit gates and damage values from a single source.
// Every call consumes exactly one Float64, so a seed replays the same stream
// whatever the ranges and rates are.
type Roller struct {
	r *rand.Rand
}

// NewRoller wraps r; a nil r gets a time-seeded source.
func NewRoller(r *rand.Rand) *Roller {
	if r == nil {
		r = newRNG()
	}
	return &Roller{r: r}
}

// Crit reports whether a uniform draw in [0,1) falls below chance.
func (ro *Roller) Crit(chance float64) bool {
	return ro.r.Float64() < chance
}

// Uniform returns min + (max-min)*f with f in [0,1), i.e. a value in [min, max).
// When min == max it returns min exactly.
func (ro *Roller) Uniform(min, max int) float64 {
	f := ro.r.Float64()
	if min == max {
		return float64(min)
	}
	return float64(min) + float64(max-min)*f
}

// Hit rolls one hit of p: the crit gate first, then damage from the chosen range.
func (ro *Roller) Hit(p models.AttackPattern) float64 {
	if ro.Crit(p.CritChance()) {
		return ro.Uniform(p.CritMin, p.CritMax)
	}
	return ro.Uniform(p.NormalMin, p.NormalMax)
}

// Trial sums every hit of every pattern, in order.
func (ro *Roller) Trial(patterns []models.AttackPattern) float64 {
	total := 0.0
	for _, p := range patterns {
		for i := 0; i < p.Hits; i++ {
			total += ro.Hit(p)
		}
	}
	return total
}
