package models

import (
	"errors"
	"fmt"
	"math"
)

// ========================= Errors =========================

var (
	// ErrInvalidPattern is returned when an attack pattern breaks a range or rate constraint.
	ErrInvalidPattern = errors.New("invalid attack pattern")
	// ErrEmptyDataset is returned when a simulation is requested with no patterns.
	// Callers surface it as a warning; nothing was run.
	ErrEmptyDataset = errors.New("no attack patterns")
	// ErrInvalidTrialCount is returned when the trial count is below 1 or
	// above a caller-imposed cap.
	ErrInvalidTrialCount = errors.New("invalid trial count")
	// ErrInvalidTarget is returned for a negative or NaN target damage.
	ErrInvalidTarget = errors.New("target damage must be a non-negative number")
)

// ========================= Domain Models =========================

// AttackPattern is one row of the pattern table: a normal and a crit damage
// range, the crit chance in percent, and how many hits it rolls per trial.
// Build it with NewAttackPattern so the ranges are checked once.
type AttackPattern struct {
	NormalMin int     `json:"normal_min" yaml:"normal_min"`
	NormalMax int     `json:"normal_max" yaml:"normal_max"`
	CritMin   int     `json:"crit_min" yaml:"crit_min"`
	CritMax   int     `json:"crit_max" yaml:"crit_max"`
	CritRate  float64 `json:"crit_rate" yaml:"crit_rate"` // percent, 0..100
	Hits      int     `json:"hits" yaml:"hits"`
}

// NewAttackPattern validates the fields and returns the pattern.
func NewAttackPattern(normalMin, normalMax, critMin, critMax int, critRate float64, hits int) (AttackPattern, error) {
	p := AttackPattern{
		NormalMin: normalMin,
		NormalMax: normalMax,
		CritMin:   critMin,
		CritMax:   critMax,
		CritRate:  critRate,
		Hits:      hits,
	}
	if err := p.Validate(); err != nil {
		return AttackPattern{}, err
	}
	return p, nil
}

// Validate reports the first broken constraint, wrapped in ErrInvalidPattern.
func (p AttackPattern) Validate() error {
	switch {
	case p.NormalMin < 0 || p.NormalMax < 0:
		return fmt.Errorf("%w: normal damage must not be negative", ErrInvalidPattern)
	case p.CritMin < 0 || p.CritMax < 0:
		return fmt.Errorf("%w: crit damage must not be negative", ErrInvalidPattern)
	case p.NormalMin > p.NormalMax:
		return fmt.Errorf("%w: normal damage min must be <= max", ErrInvalidPattern)
	case p.CritMin > p.CritMax:
		return fmt.Errorf("%w: crit damage min must be <= max", ErrInvalidPattern)
	case math.IsNaN(p.CritRate) || p.CritRate < 0 || p.CritRate > 100:
		return fmt.Errorf("%w: crit rate must be between 0 and 100", ErrInvalidPattern)
	case p.Hits < 1:
		return fmt.Errorf("%w: hits must be at least 1", ErrInvalidPattern)
	}
	return nil
}

// CritChance is the crit rate as a probability in [0,1].
func (p AttackPattern) CritChance() float64 { return p.CritRate / 100 }

// TotalHits sums hits over all patterns.
func TotalHits(patterns []AttackPattern) int {
	n := 0
	for _, p := range patterns {
		n += p.Hits
	}
	return n
}

// ValidatePatterns checks a whole list; the error names the 1-based row.
func ValidatePatterns(patterns []AttackPattern) error {
	if len(patterns) == 0 {
		return ErrEmptyDataset
	}
	for i, p := range patterns {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateTarget rejects negative and NaN targets. There is no upper bound.
func ValidateTarget(target float64) error {
	if math.IsNaN(target) || target < 0 {
		return ErrInvalidTarget
	}
	return nil
}

// ========================= Simulation =========================

// SimulationRequest is what one run needs.
type SimulationRequest struct {
	Patterns     []AttackPattern `json:"patterns" yaml:"patterns"`
	TargetDamage float64         `json:"target_damage" yaml:"target_damage"`
	Trials       int             `json:"trials" yaml:"trials"`
}

// Validate checks the request in the order patterns, target, trials.
func (r SimulationRequest) Validate() error {
	if err := ValidatePatterns(r.Patterns); err != nil {
		return err
	}
	if err := ValidateTarget(r.TargetDamage); err != nil {
		return err
	}
	if r.Trials < 1 {
		return fmt.Errorf("%w: must be at least 1", ErrInvalidTrialCount)
	}
	return nil
}

// Progress is a snapshot taken after a batch of trials.
type Progress struct {
	Trials      int     `json:"trials"`
	Successes   int     `json:"successes"`
	Probability float64 `json:"probability"`
}

// SimulationResult is produced once per completed run.
type SimulationResult struct {
	Probability float64 `json:"success_probability"`
	Trials      int     `json:"trials"`
	Successes   int     `json:"successes"`
	// Totals observed across trials
	MinDamage  float64 `json:"min_damage"`
	MaxDamage  float64 `json:"max_damage"`
	MeanDamage float64 `json:"mean_damage"`
	ElapsedMS  int64   `json:"elapsed_ms"`
}

// ========================= Wire =========================

// WsMsg is the websocket envelope in both directions.
type WsMsg struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Websocket message types.
const (
	// client -> server
	MsgSimulate = "simulate"
	MsgCancel   = "cancel"
	// server -> client
	MsgHello     = "hello"
	MsgProgress  = "progress"
	MsgResult    = "result"
	MsgCancelled = "cancelled"
	MsgWarning   = "warning"
	MsgError     = "error"
)

// Notice is the data of warning, error and cancelled messages.
type Notice struct {
	Message string `json:"message"`
}
