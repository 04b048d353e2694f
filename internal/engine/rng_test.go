package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pefman/critsim/internal/models"
)

func TestRoller_UniformBounds(t *testing.T) {
	ro := NewRoller(seededRNG(11))
	for i := 0; i < 10000; i++ {
		v := ro.Uniform(100, 200)
		assert.GreaterOrEqual(t, v, 100.0)
		assert.Less(t, v, 200.0)
	}
}

func TestRoller_UniformDegenerateRange(t *testing.T) {
	ro := NewRoller(seededRNG(11))
	for i := 0; i < 100; i++ {
		assert.Equal(t, 1000.0, ro.Uniform(1000, 1000))
	}
}

func TestRoller_CritEdges(t *testing.T) {
	ro := NewRoller(seededRNG(2))
	for i := 0; i < 1000; i++ {
		assert.False(t, ro.Crit(0))
		assert.True(t, ro.Crit(1))
	}
}

// Changing a crit rate must not shift the stream seen by later hits.
func TestRoller_StreamIsRateIndependent(t *testing.T) {
	zero := models.AttackPattern{NormalMin: 1, NormalMax: 1, CritMin: 1, CritMax: 1, CritRate: 0, Hits: 1}
	full := zero
	full.CritRate = 100
	probe := models.AttackPattern{NormalMin: 0, NormalMax: 1000, CritMin: 0, CritMax: 1000, CritRate: 0, Hits: 1}

	a := NewRoller(seededRNG(8))
	b := NewRoller(seededRNG(8))
	a.Hit(zero)
	b.Hit(full)
	assert.Equal(t, a.Hit(probe), b.Hit(probe))
}

func TestRoller_Trial(t *testing.T) {
	ro := NewRoller(nil)
	got := ro.Trial([]models.AttackPattern{
		{NormalMin: 1000, NormalMax: 1000, CritMin: 1000, CritMax: 1000, Hits: 5},
		{NormalMin: 7, NormalMax: 7, CritMin: 9, CritMax: 9, CritRate: 100, Hits: 2},
	})
	assert.Equal(t, 5018.0, got)
}
