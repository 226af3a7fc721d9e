package dca

import (
	"encoding/json"
	"fmt"
	"os"
)

// Report bundles a simulation with its per-contribution breakdown.
type Report struct {
	Currency  string           `json:"currency"`
	Result    *Result          `json:"result"`
	Entries   []BreakdownEntry `json:"entries,omitempty"`
	Totals    *BreakdownTotals `json:"totals,omitempty"`
	CostBasis float64          `json:"costBasis"`
}

// WriteReport writes r as indented JSON to path.
func WriteReport(path string, r *Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("dca: encode report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("dca: write report %s: %w", path, err)
	}
	return nil
}
