package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttackPattern(t *testing.T) {
	p, err := NewAttackPattern(1000, 2000, 2000, 4000, 50, 1)
	require.NoError(t, err)
	assert.Equal(t, AttackPattern{NormalMin: 1000, NormalMax: 2000, CritMin: 2000, CritMax: 4000, CritRate: 50, Hits: 1}, p)
	assert.Equal(t, 0.5, p.CritChance())
}

func TestAttackPattern_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       AttackPattern
		wantMsg string
	}{
		{"normal min above max", AttackPattern{NormalMin: 3, NormalMax: 2, CritMax: 5, Hits: 1}, "normal damage min must be <= max"},
		{"crit min above max", AttackPattern{NormalMax: 2, CritMin: 9, CritMax: 5, Hits: 1}, "crit damage min must be <= max"},
		{"negative normal", AttackPattern{NormalMin: -1, NormalMax: 2, Hits: 1}, "normal damage must not be negative"},
		{"negative crit", AttackPattern{CritMin: -5, CritMax: -1, Hits: 1}, "crit damage must not be negative"},
		{"crit rate above 100", AttackPattern{CritRate: 100.5, Hits: 1}, "crit rate"},
		{"crit rate negative", AttackPattern{CritRate: -1, Hits: 1}, "crit rate"},
		{"crit rate NaN", AttackPattern{CritRate: math.NaN(), Hits: 1}, "crit rate"},
		{"zero hits", AttackPattern{}, "hits must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			require.ErrorIs(t, err, ErrInvalidPattern)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// normal_min > normal_max is rejected whatever the other fields hold.
func TestAttackPattern_NormalRangeAlwaysRejected(t *testing.T) {
	for _, rate := range []float64{0, 12.5, 100} {
		for _, hits := range []int{1, 3, 1000} {
			for _, crit := range [][2]int{{0, 0}, {10, 20}, {9999, 99999}} {
				_, err := NewAttackPattern(11, 10, crit[0], crit[1], rate, hits)
				assert.ErrorIs(t, err, ErrInvalidPattern)
			}
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	assert.ErrorIs(t, ValidatePatterns(nil), ErrEmptyDataset)

	err := ValidatePatterns([]AttackPattern{{Hits: 1}, {Hits: 0}})
	require.ErrorIs(t, err, ErrInvalidPattern)
	assert.Contains(t, err.Error(), "pattern 2")
}

func TestSimulationRequest_Validate(t *testing.T) {
	ok := []AttackPattern{{NormalMin: 1, NormalMax: 1, Hits: 1}}
	assert.NoError(t, SimulationRequest{Patterns: ok, Trials: 1}.Validate())
	assert.ErrorIs(t, SimulationRequest{Patterns: ok}.Validate(), ErrInvalidTrialCount)
	assert.ErrorIs(t, SimulationRequest{Patterns: ok, Trials: 1, TargetDamage: math.NaN()}.Validate(), ErrInvalidTarget)
	assert.ErrorIs(t, SimulationRequest{Trials: 1}.Validate(), ErrEmptyDataset)
}

func TestTotalHits(t *testing.T) {
	assert.Equal(t, 0, TotalHits(nil))
	assert.Equal(t, 6, TotalHits([]AttackPattern{{Hits: 1}, {Hits: 5}}))
}
