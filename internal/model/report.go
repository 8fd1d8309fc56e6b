package model

import "time"

// SymbolOutcome is the result of one symbol's fetch cycle. Exactly one of
// Inserted>0 / Skipped / Error describes what happened; a skip is a normal
// outcome, not a failure.
type SymbolOutcome struct {
	Symbol   string `json:"symbol"`
	Inserted int    `json:"inserted"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// RunReport aggregates the per-symbol outcomes of one batch run.
type RunReport struct {
	Job     string                   `json:"job"`
	Results map[string]SymbolOutcome `json:"results"`
	RunUTC  time.Time                `json:"run_utc"`
}

// TotalInserted sums successful upserts across all symbols.
func (r *RunReport) TotalInserted() int {
	total := 0
	for _, res := range r.Results {
		total += res.Inserted
	}
	return total
}

// Failed returns the symbols whose cycle ended in a terminal error.
func (r *RunReport) Failed() []string {
	var failed []string
	for sym, res := range r.Results {
		if res.Error != "" {
			failed = append(failed, sym)
		}
	}
	return failed
}
