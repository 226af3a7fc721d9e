package dca

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidInput is the umbrella for every validation failure.
	ErrInvalidInput = errors.New("dca: invalid input")

	ErrEmptySeries       = fmt.Errorf("%w: price series is empty", ErrInvalidInput)
	ErrNonPositiveAmount = fmt.Errorf("%w: contribution amount must be positive", ErrInvalidInput)
	ErrInvalidPrice      = fmt.Errorf("%w: prices must be positive", ErrInvalidInput)
	ErrInvalidDate       = fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrInvalidInput)
)

// PricePoint is one observed price. Date is YYYY-MM-DD.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Purchase is one executed contribution.
type Purchase struct {
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Result summarises a simulation.
type Result struct {
	StartDate             string     `json:"startDate"`
	Contributions         int        `json:"contributions"`
	TotalInvested         float64    `json:"totalInvested"`
	TotalQuantity         float64    `json:"totalBTC"`
	CurrentPrice          float64    `json:"currentPrice"`
	CurrentValue          float64    `json:"currentValue"`
	CurrentPnL            float64    `json:"currentPnL"`
	CurrentPnLPercent     float64    `json:"currentPnLPercent"`
	DaysInDrawdown        int        `json:"daysInDrawdown"`
	LongestNegativeStreak int        `json:"longestNegativeStreak"`
	Purchases             []Purchase `json:"purchases,omitempty"`
}

// Simulate buys amount worth at the first price of every period from the
// effective start onwards and reports the position at the last price.
//
// The effective start is the first date on or after startDate; when no such
// date exists the series' first date is used. Drawdown days are counted over
// every observation after the first purchase, comparing the value of the
// quantity held at that date with the amount invested by that date.
func Simulate(series []PricePoint, startDate string, amount float64) (*Result, error) {
	sorted, err := prepare(series, startDate, amount)
	if err != nil {
		return nil, err
	}

	startIdx := effectiveStart(sorted, startDate)
	purchases := schedule(sorted, startIdx, amount)

	res := &Result{
		StartDate:     sorted[startIdx].Date,
		Contributions: len(purchases),
		Purchases:     purchases,
	}
	for _, p := range purchases {
		res.TotalInvested += p.Amount
		res.TotalQuantity += p.Quantity
	}
	res.CurrentPrice = sorted[len(sorted)-1].Price
	res.CurrentValue = res.TotalQuantity * res.CurrentPrice
	res.CurrentPnL = res.CurrentValue - res.TotalInvested
	res.CurrentPnLPercent = res.CurrentPnL / res.TotalInvested * 100
	res.DaysInDrawdown, res.LongestNegativeStreak = drawdown(sorted, startIdx, purchases)
	return res, nil
}

// CostBasis is the average price paid per unit.
func CostBasis(totalInvested, totalQuantity float64) (float64, error) {
	if totalQuantity == 0 {
		return 0, fmt.Errorf("%w: cost basis of a zero quantity", ErrInvalidInput)
	}
	return totalInvested / totalQuantity, nil
}

// CostBasis of the simulated position.
func (r *Result) CostBasis() (float64, error) {
	return CostBasis(r.TotalInvested, r.TotalQuantity)
}

func prepare(series []PricePoint, startDate string, amount float64) ([]PricePoint, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	if !(amount > 0) || math.IsInf(amount, 1) {
		return nil, fmt.Errorf("%w, got %v", ErrNonPositiveAmount, amount)
	}
	if _, err := time.Parse(dateLayout, startDate); err != nil {
		return nil, fmt.Errorf("%w: start date %q", ErrInvalidDate, startDate)
	}
	for _, p := range series {
		if _, err := time.Parse(dateLayout, p.Date); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, p.Date)
		}
		if !(p.Price > 0) || math.IsInf(p.Price, 1) {
			return nil, fmt.Errorf("%w: %s price %v", ErrInvalidPrice, p.Date, p.Price)
		}
	}
	sorted := make([]PricePoint, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })
	return sorted, nil
}

func effectiveStart(sorted []PricePoint, startDate string) int {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].Date >= startDate })
	if idx == len(sorted) {
		return 0
	}
	return idx
}

func period(date string) string { return date[:7] }

// schedule picks the first observation of each period from startIdx onwards.
// Periods without observations produce no purchase.
func schedule(sorted []PricePoint, startIdx int, amount float64) []Purchase {
	var out []Purchase
	last := ""
	for _, p := range sorted[startIdx:] {
		if per := period(p.Date); per != last {
			last = per
			out = append(out, Purchase{
				Date:     p.Date,
				Amount:   amount,
				Price:    p.Price,
				Quantity: amount / p.Price,
			})
		}
	}
	return out
}

// drawdown walks every observation after startIdx with a running total of the
// purchases dated on or before it.
func drawdown(sorted []PricePoint, startIdx int, purchases []Purchase) (days, longest int) {
	var invested, quantity float64
	next, streak := 0, 0
	for i := startIdx + 1; i < len(sorted); i++ {
		date := sorted[i].Date
		for next < len(purchases) && purchases[next].Date <= date {
			invested += purchases[next].Amount
			quantity += purchases[next].Quantity
			next++
		}
		if quantity <= 0 {
			continue
		}
		if quantity*sorted[i].Price < invested {
			days++
			streak++
			longest = max(longest, streak)
		} else {
			streak = 0
		}
	}
	return days, longest
}
