package game

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/critsim/internal/engine"
	"github.com/pefman/critsim/internal/models"
)

func TestTraceTrial_Fixed(t *testing.T) {
	patterns := []models.AttackPattern{
		{NormalMin: 1000, NormalMax: 1000, CritMin: 1000, CritMax: 1000, CritRate: 0, Hits: 5},
		{NormalMin: 0, NormalMax: 1, CritMin: 2000, CritMax: 2000, CritRate: 100, Hits: 1},
	}
	tr, err := TraceTrial(engine.NewRoller(nil), patterns, 6999)
	require.NoError(t, err)

	assert.Equal(t, 7000.0, tr.Total)
	assert.True(t, tr.Success)
	require.Len(t, tr.Patterns, 2)
	assert.Len(t, tr.Patterns[0].Hits, 5)
	assert.Equal(t, 0, tr.Patterns[0].Crits)
	assert.Equal(t, 1, tr.Patterns[1].Crits)
	assert.Equal(t, HitRoll{Crit: true, Damage: 2000}, tr.Patterns[1].Hits[0])
	assert.Contains(t, tr.Logs[len(tr.Logs)-1], "SUCCESS")
}

func TestTraceTrial_StrictTarget(t *testing.T) {
	patterns := []models.AttackPattern{{NormalMin: 1000, NormalMax: 1000, CritMin: 1000, CritMax: 1000, Hits: 5}}
	tr, err := TraceTrial(engine.NewRoller(nil), patterns, 5000)
	require.NoError(t, err)
	assert.False(t, tr.Success)
	assert.Contains(t, tr.Logs[len(tr.Logs)-1], "FAIL")
}

// A trace replays the first trial of a single-trial estimate with the same seed.
func TestTraceTrial_MatchesEstimate(t *testing.T) {
	patterns := []models.AttackPattern{
		{NormalMin: 1000, NormalMax: 2000, CritMin: 2000, CritMax: 4000, CritRate: 50, Hits: 3},
		{NormalMin: 10, NormalMax: 20, CritMin: 30, CritMax: 40, CritRate: 10, Hits: 2},
	}
	tr, err := TraceTrial(engine.NewRoller(rand.New(rand.NewSource(77))), patterns, 0)
	require.NoError(t, err)

	res, err := engine.Estimate(context.Background(), models.SimulationRequest{Patterns: patterns, Trials: 1}, engine.WithSeed(77))
	require.NoError(t, err)
	assert.Equal(t, res.MinDamage, tr.Total)
}

func TestTraceTrial_Invalid(t *testing.T) {
	_, err := TraceTrial(engine.NewRoller(nil), nil, 0)
	assert.ErrorIs(t, err, models.ErrEmptyDataset)

	_, err = TraceTrial(engine.NewRoller(nil), []models.AttackPattern{{Hits: 1}}, -5)
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}
