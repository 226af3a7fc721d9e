package dataset

import (
	"fmt"
)

// Regime is the coarse trend classification attached to every monthly shard.
type Regime string

const (
	RegimeBull    Regime = "BULL"
	RegimeBear    Regime = "BEAR"
	RegimeLateral Regime = "LATERAL"
	RegimeNA      Regime = "N/A"
)

// Valid reports whether r is one of the known regimes.
func (r Regime) Valid() bool {
	switch r {
	case RegimeBull, RegimeBear, RegimeLateral, RegimeNA:
		return true
	default:
		return false
	}
}

// Rules documents how the producer derived the shard statistics.
type Rules struct {
	DailyPrice      string  `json:"dailyPrice"`      // e.g. "last_seen_price_utc"
	Entry           string  `json:"entry"`           // e.g. "first_available_day_of_month"
	RegimeThreshold float64 `json:"regimeThreshold"` // 0.10 == 10%
}

// Manifest describes one version of the dataset.
type Manifest struct {
	Version         string   `json:"version"`
	Asset           string   `json:"asset"`
	MonthsAvailable []string `json:"monthsAvailable"` // sorted YYYY-MM
	Currencies      []string `json:"currencies"`
	Rules           Rules    `json:"rules"`
	GeneratedAt     string   `json:"generatedAt"`
}

// SupportsCurrency reports whether the manifest lists currency.
func (m *Manifest) SupportsCurrency(currency string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// MonthlyRecord is one (currency, period) shard.
type MonthlyRecord struct {
	Month                     string   `json:"month"`
	Currency                  string   `json:"currency"`
	EntryDate                 string   `json:"entryDate"`
	EntryPrice                float64  `json:"entryPrice"`
	ExitDate                  *string  `json:"exitDate,omitempty"`
	ExitPrice                 *float64 `json:"exitPrice,omitempty"`
	PctChangeWithinMonth      *float64 `json:"pctChangeWithinMonth,omitempty"`
	DaysPositive              int      `json:"daysPositive"`
	DaysNegative              int      `json:"daysNegative"`
	DaysTotal                 int      `json:"daysTotal"`
	PctChangeVsPrevMonthStart *float64 `json:"pctChangeVsPrevMonthStart"`
	Regime                    Regime   `json:"regime"`
}

// HasExit reports whether the shard carries a last-observed day.
func (r *MonthlyRecord) HasExit() bool {
	return r.ExitDate != nil && r.ExitPrice != nil && *r.ExitDate != "" && *r.ExitPrice > 0
}

// Validate checks the structural invariants of a shard.
func (r *MonthlyRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("dataset: nil monthly record")
	}
	if _, err := ParsePeriod(r.Month); err != nil {
		return err
	}
	if _, err := NormalizeCurrency(r.Currency); err != nil {
		return err
	}
	if r.EntryPrice <= 0 {
		return fmt.Errorf("dataset: %s entry price must be positive, got %v", r.Month, r.EntryPrice)
	}
	if len(r.EntryDate) < len(periodLayout) || r.EntryDate[:len(periodLayout)] != r.Month {
		return fmt.Errorf("dataset: %s entry date %q outside period", r.Month, r.EntryDate)
	}
	if r.DaysPositive < 0 || r.DaysNegative < 0 || r.DaysTotal < 0 {
		return fmt.Errorf("dataset: %s day counts must be non-negative", r.Month)
	}
	if r.DaysPositive+r.DaysNegative > r.DaysTotal {
		return fmt.Errorf("dataset: %s positive+negative days (%d+%d) exceed total %d",
			r.Month, r.DaysPositive, r.DaysNegative, r.DaysTotal)
	}
	if r.Regime != "" && !r.Regime.Valid() {
		return fmt.Errorf("dataset: %s unknown regime %q", r.Month, r.Regime)
	}
	return nil
}

// DaysNeutral is the count of days classified neither positive nor negative.
func (r *MonthlyRecord) DaysNeutral() int {
	return r.DaysTotal - r.DaysPositive - r.DaysNegative
}
