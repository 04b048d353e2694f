package game

// HitRoll is one hit of a traced trial.
type HitRoll struct {
	Crit   bool    `json:"crit"`
	Damage float64 `json:"damage"`
}

// PatternTrace captures one pattern's hits within the trial
type PatternTrace struct {
	Index    int       `json:"index"` // 0-based position in the list
	Hits     []HitRoll `json:"hits"`
	Crits    int       `json:"crits"`
	Subtotal float64   `json:"subtotal"`
}

// TrialTrace is a single trial, roll by roll, with readable logs.
type TrialTrace struct {
	Logs     []string       `json:"logs"`
	Patterns []PatternTrace `json:"patterns"`
	Total    float64        `json:"total"`
	Target   float64        `json:"target"`
	Success  bool           `json:"success"`
}
