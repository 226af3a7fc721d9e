package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/logic"
	"popreport/internal/svc"
	"popreport/pkg/dca"
)

type options struct {
	Currency    string
	StartDate   string
	Amount      float64
	IncludeExit bool
	WaitTimeout time.Duration
}

// simulate loads the dataset, waits for the older months and runs the full
// simulation with its per-month breakdown.
func simulate(ctx context.Context, sc *svc.ServiceContext, opts options) (*dca.Report, error) {
	res, err := sc.Datasets.Dataset(ctx, opts.Currency)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.WaitTimeout)
	defer cancel()
	if err := res.Wait(waitCtx); err != nil {
		logx.Infof("simulate: continuing with %d months, older months still loading", res.Len())
	}

	series := logic.BuildSeries(res.Records(), opts.IncludeExit)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: currency %s", logic.ErrNoData, res.Currency)
	}
	result, err := dca.Simulate(series, opts.StartDate, opts.Amount)
	if err != nil {
		return nil, err
	}
	entries, totals, err := dca.Breakdown(series, opts.StartDate, opts.Amount)
	if err != nil {
		return nil, err
	}
	costBasis, err := result.CostBasis()
	if err != nil {
		return nil, err
	}
	return &dca.Report{
		Currency:  res.Currency,
		Result:    result,
		Entries:   entries,
		Totals:    &totals,
		CostBasis: costBasis,
	}, nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixedBank(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2) + "%"
}

func summaryLines(r *dca.Report) []string {
	res := r.Result
	qty := decimal.NewFromFloat(res.TotalQuantity).Round(8)
	lines := []string{
		fmt.Sprintf("Start: %s, %d contributions", res.StartDate, res.Contributions),
		fmt.Sprintf("Invested: %s %s", money(res.TotalInvested), r.Currency),
		fmt.Sprintf("Holdings: %s BTC at cost basis %s %s", qty.String(), money(r.CostBasis), r.Currency),
		fmt.Sprintf("Value: %s %s at %s", money(res.CurrentValue), r.Currency, money(res.CurrentPrice)),
		fmt.Sprintf("P&L: %s %s (%s)", money(res.CurrentPnL), r.Currency, percent(res.CurrentPnLPercent)),
		fmt.Sprintf("Drawdown: %d days, longest streak %d", res.DaysInDrawdown, res.LongestNegativeStreak),
	}
	for _, e := range r.Entries {
		lines = append(lines, fmt.Sprintf("  %s  bought %s at %s, now %s (%s, %s/month)",
			e.Period,
			decimal.NewFromFloat(e.Quantity).Round(8).String(),
			money(e.Price),
			money(e.CurrentValue),
			percent(e.TotalGainPercent),
			percent(e.PeriodGainPercent),
		))
	}
	return lines
}
