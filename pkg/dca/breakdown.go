package dca

import "math"

// BreakdownEntry is the performance of a single contribution marked at the
// last price of the series.
type BreakdownEntry struct {
	Period            string  `json:"period"`
	Date              string  `json:"date"`
	Amount            float64 `json:"amountInvested"`
	Price             float64 `json:"price"`
	Quantity          float64 `json:"btcBought"`
	CurrentValue      float64 `json:"currentValue"`
	TotalGainPercent  float64 `json:"totalGainPercent"`
	PeriodGainPercent float64 `json:"monthlyGainPercent"`
	PeriodsElapsed    int     `json:"monthsElapsed"`
}

// BreakdownTotals aggregates a breakdown.
type BreakdownTotals struct {
	TotalInvested    float64 `json:"totalInvested"`
	TotalQuantity    float64 `json:"totalBTC"`
	CurrentValue     float64 `json:"totalCurrentValue"`
	TotalGainPercent float64 `json:"totalGainPercent"`
}

// Breakdown lists the contributions Simulate would make with their individual
// gains. PeriodGainPercent is the compound per-period rate that turns the
// contribution into its current value over PeriodsElapsed periods, where the
// newest contribution counts as one elapsed period.
func Breakdown(series []PricePoint, startDate string, amount float64) ([]BreakdownEntry, BreakdownTotals, error) {
	sorted, err := prepare(series, startDate, amount)
	if err != nil {
		return nil, BreakdownTotals{}, err
	}
	purchases := schedule(sorted, effectiveStart(sorted, startDate), amount)
	current := sorted[len(sorted)-1].Price

	entries := make([]BreakdownEntry, 0, len(purchases))
	var totals BreakdownTotals
	for i, p := range purchases {
		value := p.Quantity * current
		elapsed := len(purchases) - i
		e := BreakdownEntry{
			Period:           period(p.Date),
			Date:             p.Date,
			Amount:           p.Amount,
			Price:            p.Price,
			Quantity:         p.Quantity,
			CurrentValue:     value,
			TotalGainPercent: (value - p.Amount) / p.Amount * 100,
			PeriodsElapsed:   elapsed,
		}
		e.PeriodGainPercent = (math.Pow(value/p.Amount, 1/float64(elapsed)) - 1) * 100
		entries = append(entries, e)

		totals.TotalInvested += p.Amount
		totals.TotalQuantity += p.Quantity
		totals.CurrentValue += value
	}
	if totals.TotalInvested > 0 {
		totals.TotalGainPercent = (totals.CurrentValue - totals.TotalInvested) / totals.TotalInvested * 100
	}
	return entries, totals, nil
}
