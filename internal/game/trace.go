package game

import (
	"fmt"

	"github.com/pefman/critsim/internal/engine"
	"github.com/pefman/critsim/internal/models"
)

// TraceTrial plays one trial with ro and logs each step. Given the same
// source state it consumes exactly the draws engine.Roller.Trial would, so
// the total matches the first trial of a seeded Estimate.
func TraceTrial(ro *engine.Roller, patterns []models.AttackPattern, target float64) (TrialTrace, error) {
	if err := models.ValidatePatterns(patterns); err != nil {
		return TrialTrace{}, err
	}
	if err := models.ValidateTarget(target); err != nil {
		return TrialTrace{}, err
	}
	tr := TrialTrace{Target: target}
	logs := []string{}

	for i, p := range patterns {
		pt := PatternTrace{Index: i}
		logs = append(logs, fmt.Sprintf("Pattern %d: normal %d-%d, crit %d-%d at %.2f%%, %d hit(s)",
			i+1, p.NormalMin, p.NormalMax, p.CritMin, p.CritMax, p.CritRate, p.Hits))
		chance := p.CritChance()
		for h := 0; h < p.Hits; h++ {
			var roll HitRoll
			if ro.Crit(chance) {
				roll = HitRoll{Crit: true, Damage: ro.Uniform(p.CritMin, p.CritMax)}
				pt.Crits++
				logs = append(logs, fmt.Sprintf("Hit %d: CRIT -> %.0f", h+1, roll.Damage))
			} else {
				roll = HitRoll{Damage: ro.Uniform(p.NormalMin, p.NormalMax)}
				logs = append(logs, fmt.Sprintf("Hit %d: normal -> %.0f", h+1, roll.Damage))
			}
			pt.Hits = append(pt.Hits, roll)
			pt.Subtotal += roll.Damage
			// summed per hit, in the estimator's order
			tr.Total += roll.Damage
		}
		logs = append(logs, fmt.Sprintf("Pattern %d subtotal: %.0f (%d crit(s))", i+1, pt.Subtotal, pt.Crits))
		tr.Patterns = append(tr.Patterns, pt)
	}

	tr.Success = tr.Total > target
	verdict := "FAIL"
	if tr.Success {
		verdict = "SUCCESS"
	}
	logs = append(logs, fmt.Sprintf("Total damage: %.0f vs target %.0f -> %s", tr.Total, target, verdict))
	tr.Logs = logs
	return tr, nil
}
